// Package services – ZoneService
//
// This file implements the ZoneService, which manages polygonal risk
// zones: creation with boundary validation, listing with inspection
// hints, point containment, counter correlation, and hotspot detection
// over the current alert coordinate snapshot.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/repo"
)

// ZoneRepo defines the repository contract required by ZoneService.
type ZoneRepo interface {
	CreateZone(ctx context.Context, db *gorm.DB, z *domain.Zone) error
	GetZone(ctx context.Context, db *gorm.DB, id string) (*domain.Zone, error)
	CountZones(ctx context.Context, db *gorm.DB, risk domain.RiskLevel) (int64, error)
	ListZonesPage(ctx context.Context, db *gorm.DB, risk domain.RiskLevel, offset, limit int) ([]domain.Zone, error)
	ListAllZones(ctx context.Context, db *gorm.DB) ([]domain.Zone, error)
	IncrementZoneAlert(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	TouchInspection(ctx context.Context, db *gorm.DB, id string, at time.Time) error
}

// CoordinateSource supplies the alert coordinate snapshot scanned for
// hotspots.
type CoordinateSource interface {
	ListDomainAlertCoordinates(ctx context.Context, db *gorm.DB) ([]geo.Point, error)
}

// CreateZoneInput carries a new zone definition.
type CreateZoneInput struct {
	Name            string
	Description     string
	RiskLevel       domain.RiskLevel
	Boundary        []geo.Point
	ResponsibleTeam string
}

// ZoneSummary is a zone annotated with its inspection due flag.
type ZoneSummary struct {
	Zone            domain.Zone `json:"zone"`
	NeedsInspection bool        `json:"needs_inspection"`
}

// ZoneRef identifies a zone in hotspot annotations.
type ZoneRef struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	RiskLevel domain.RiskLevel `json:"risk_level"`
}

// HotspotView is a detected hotspot annotated with the zones containing
// its center.
type HotspotView struct {
	Center  geo.Point `json:"center"`
	Density int       `json:"density"`
	Radius  float64   `json:"radius_km"`
	Zones   []ZoneRef `json:"zones"`
}

// inspectionBaselineDays is the baseline inspection interval; the risk
// level scales it per zone.
const inspectionBaselineDays = 30

// ZoneService provides risk-zone operations.
type ZoneService struct {
	DB     *gorm.DB
	Repo   ZoneRepo
	Coords CoordinateSource

	// HotspotRadiusKm and HotspotMinPoints parameterize the density scan.
	HotspotRadiusKm  float64
	HotspotMinPoints int

	Log zerolog.Logger
}

// Create validates and persists a zone. Open boundaries are closed by
// repeating the first vertex; fewer than three distinct vertices is
// rejected with ErrInvalidBoundary.
func (s *ZoneService) Create(ctx context.Context, in CreateZoneInput) (*domain.Zone, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidPayload
	}
	risk := in.RiskLevel
	if risk == "" {
		risk = domain.RiskMedium
	}
	if !risk.Valid() {
		return nil, ErrInvalidPayload
	}

	ring := domain.Ring(in.Boundary)
	if ring.DistinctVertices() < 3 {
		return nil, ErrInvalidBoundary
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}

	z := &domain.Zone{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		RiskLevel:   risk,
		Boundary:    ring,
		CreatedAt:   time.Now().UTC(),
	}
	if team := strings.TrimSpace(in.ResponsibleTeam); team != "" {
		z.ResponsibleTeam = &team
	}

	if err := s.Repo.CreateZone(ctx, s.DB, z); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrZoneExists
		}
		return nil, err
	}
	return z, nil
}

// Get returns a zone by id, or ErrZoneNotFound.
func (s *ZoneService) Get(ctx context.Context, id string) (*domain.Zone, error) {
	z, err := s.Repo.GetZone(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrZoneNotFound
		}
		return nil, err
	}
	return z, nil
}

// ListPage returns a page of zones annotated with inspection-due flags,
// plus the total count for the filter.
func (s *ZoneService) ListPage(ctx context.Context, risk domain.RiskLevel, page, pageSize int) ([]ZoneSummary, int64, error) {
	if risk != "" && !risk.Valid() {
		return nil, 0, ErrInvalidPayload
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := s.Repo.CountZones(ctx, s.DB, risk)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ZoneSummary{}, 0, nil
	}
	zones, err := s.Repo.ListZonesPage(ctx, s.DB, risk, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now().UTC()
	out := make([]ZoneSummary, 0, len(zones))
	for _, z := range zones {
		out = append(out, ZoneSummary{Zone: z, NeedsInspection: z.NeedsInspection(now, inspectionBaselineDays)})
	}
	return out, total, nil
}

// Containing returns every zone whose boundary contains p. The scan is
// linear over all zones; acceptable while the zone table stays small.
func (s *ZoneService) Containing(ctx context.Context, p geo.Point) ([]domain.Zone, error) {
	zones, err := s.Repo.ListAllZones(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	var out []domain.Zone
	for i := range zones {
		if zones[i].Contains(p) {
			out = append(out, zones[i])
		}
	}
	return out, nil
}

// RecordAlert bumps the counter of every zone containing p and returns
// the ids of the zones hit. Callers are responsible for invoking it at
// most once per alert.
func (s *ZoneService) RecordAlert(ctx context.Context, p geo.Point, at time.Time) ([]string, error) {
	zones, err := s.Containing(ctx, p)
	if err != nil {
		return nil, err
	}
	var hit []string
	for _, z := range zones {
		if err := s.Repo.IncrementZoneAlert(ctx, s.DB, z.ID, at); err != nil {
			s.Log.Error().Err(err).Str("zone_id", z.ID).Msg("increment zone counter")
			continue
		}
		hit = append(hit, z.ID)
	}
	return hit, nil
}

// MarkInspected records an inspection visit, or ErrZoneNotFound.
func (s *ZoneService) MarkInspected(ctx context.Context, id string, at time.Time) error {
	if err := s.Repo.TouchInspection(ctx, s.DB, id, at); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrZoneNotFound
		}
		return err
	}
	return nil
}

// Hotspots scans the current alert coordinate snapshot for dense
// clusters and annotates each with the zones containing its center.
// The scan is quadratic in the number of alerts; it runs on demand over
// an in-memory snapshot and is not sized for very large alert volumes.
func (s *ZoneService) Hotspots(ctx context.Context) ([]HotspotView, error) {
	points, err := s.Coords.ListDomainAlertCoordinates(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	spots := geo.FindHotspots(points, s.HotspotRadiusKm, s.HotspotMinPoints)
	if len(spots) == 0 {
		return []HotspotView{}, nil
	}

	zones, err := s.Repo.ListAllZones(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	out := make([]HotspotView, 0, len(spots))
	for _, h := range spots {
		view := HotspotView{Center: h.Center, Density: h.Density, Radius: h.Radius, Zones: []ZoneRef{}}
		for i := range zones {
			if zones[i].Contains(h.Center) {
				view.Zones = append(view.Zones, ZoneRef{
					ID:        zones[i].ID,
					Name:      zones[i].Name,
					RiskLevel: zones[i].RiskLevel,
				})
			}
		}
		out = append(out, view)
	}
	return out, nil
}
