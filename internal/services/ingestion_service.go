// Package services – IngestionService
//
// This file implements the consumer side of the relay pipeline: accepting
// alert payloads pushed by the citizen platform, deduplicating them on the
// origin reference, classifying their priority from the description,
// converting proof descriptors into local attachments, and triggering the
// zone correlation exactly once per record.
package services

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/classify"
	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
)

// DomainAlertRepo defines the repository contract required by
// IngestionService and BridgeService.
type DomainAlertRepo interface {
	CreateDomainAlert(ctx context.Context, db *gorm.DB, rec *domain.DomainAlert) error
	FindByOriginRef(ctx context.Context, db *gorm.DB, originServiceID, originAlertID string) (*domain.DomainAlert, error)
	GetDomainAlert(ctx context.Context, db *gorm.DB, id string) (*domain.DomainAlert, error)
	CountDomainAlerts(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string) (int64, error)
	ListDomainAlertsPage(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string, offset, limit int) ([]domain.DomainAlert, error)
	UpdateDomainStatus(ctx context.Context, db *gorm.DB, id string, status domain.DomainStatus) error
	AppendDomainComment(ctx context.Context, db *gorm.DB, domainAlertID, author, text string) (*domain.DomainComment, error)
	MarkZoneUpdated(ctx context.Context, db *gorm.DB, id string) (bool, error)
}

// ZoneCorrelator is the slice of ZoneService used by ingestion.
type ZoneCorrelator interface {
	RecordAlert(ctx context.Context, p geo.Point, at time.Time) ([]string, error)
	Containing(ctx context.Context, p geo.Point) ([]domain.Zone, error)
}

// IngestResult reports the outcome of an ingestion attempt. Duplicate
// deliveries are accepted and answered with the id of the existing copy.
type IngestResult struct {
	ID        string
	Accepted  bool
	Duplicate bool
	Priority  classify.Priority
}

// IngestionService accepts relayed alerts from collaborating services.
type IngestionService struct {
	DB    *gorm.DB
	Repo  DomainAlertRepo
	Zones ZoneCorrelator

	Log zerolog.Logger
}

// titleMaxLen caps generated domain alert titles.
const titleMaxLen = 100

// Ingest validates and stores one pushed alert. The unique index on the
// origin reference is the dedup authority: a concurrent or repeated push
// of the same alert converges on the first stored copy.
func (s *IngestionService) Ingest(ctx context.Context, originServiceID string, p relay.AlertPayload) (*IngestResult, error) {
	originServiceID = strings.TrimSpace(originServiceID)
	if originServiceID == "" || validateIngest(p) != nil {
		return nil, ErrInvalidPayload
	}

	now := time.Now().UTC()
	createdAt := now
	if !p.CreatedAt.IsZero() {
		// Keep the producer's timestamp so zone correlation and listings
		// reflect when the citizen reported, not when the push arrived.
		createdAt = p.CreatedAt.UTC()
	}
	rec := &domain.DomainAlert{
		ID:              uuid.NewString(),
		Title:           buildTitle(p),
		Description:     strings.TrimSpace(p.Description),
		Category:        strings.TrimSpace(p.Category),
		Status:          domain.DomainStatusNew,
		Priority:        classify.Classify(p.Description),
		Lon:             p.Location.Coordinates[0],
		Lat:             p.Location.Coordinates[1],
		Address:         strings.TrimSpace(p.Location.Address),
		CreatedBy:       "relay",
		OriginServiceID: originServiceID,
		OriginAlertID:   strings.TrimSpace(p.AlertID),
		CreatedAt:       createdAt,
	}
	if !p.IsAnonymous && p.CitizenID != "" {
		cid := p.CitizenID
		rec.OriginCitizenID = &cid
	}
	for _, proof := range p.Proofs {
		rec.Attachments = append(rec.Attachments, domain.Attachment{
			ID:         uuid.NewString(),
			Filename:   proofFilename(proof.URL),
			Path:       proof.URL,
			MimeType:   proofMime(proof.Type),
			UploadedAt: now,
		})
	}

	if err := s.Repo.CreateDomainAlert(ctx, s.DB, rec); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			existing, ferr := s.Repo.FindByOriginRef(ctx, s.DB, originServiceID, rec.OriginAlertID)
			if ferr != nil {
				return nil, ferr
			}
			return &IngestResult{ID: existing.ID, Accepted: true, Duplicate: true, Priority: existing.Priority}, nil
		}
		return nil, err
	}

	s.correlate(ctx, rec)

	return &IngestResult{ID: rec.ID, Accepted: true, Priority: rec.Priority}, nil
}

// correlate moves zone counters for a freshly ingested record. The
// zone_updated flag is flipped first with a guarded update, so retried
// ingestion work can never double-count.
func (s *IngestionService) correlate(ctx context.Context, rec *domain.DomainAlert) {
	flipped, err := s.Repo.MarkZoneUpdated(ctx, s.DB, rec.ID)
	if err != nil {
		s.Log.Error().Err(err).Str("domain_alert_id", rec.ID).Msg("flip zone correlation guard")
		return
	}
	if !flipped {
		return
	}
	hit, err := s.Zones.RecordAlert(ctx, geo.Point{Lon: rec.Lon, Lat: rec.Lat}, rec.CreatedAt)
	if err != nil {
		s.Log.Error().Err(err).Str("domain_alert_id", rec.ID).Msg("zone correlation")
		return
	}
	if len(hit) > 0 {
		s.Log.Info().Str("domain_alert_id", rec.ID).Strs("zones", hit).Msg("alert correlated to zones")
	}
}

// Get returns a domain alert with the zones containing its location.
func (s *IngestionService) Get(ctx context.Context, id string) (*domain.DomainAlert, []domain.Zone, error) {
	rec, err := s.Repo.GetDomainAlert(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrAlertNotFound
		}
		return nil, nil, err
	}
	zones, err := s.Zones.Containing(ctx, geo.Point{Lon: rec.Lon, Lat: rec.Lat})
	if err != nil {
		return nil, nil, err
	}
	return rec, zones, nil
}

// ListPage returns a page of domain alerts with the total count for the
// filter. Empty filter values match everything.
func (s *IngestionService) ListPage(ctx context.Context, status domain.DomainStatus, category string, page, pageSize int) ([]domain.DomainAlert, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := s.Repo.CountDomainAlerts(ctx, s.DB, status, category)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.DomainAlert{}, 0, nil
	}
	items, err := s.Repo.ListDomainAlertsPage(ctx, s.DB, status, category, (page-1)*pageSize, pageSize)
	return items, total, err
}

// AddExternalComment attaches a forwarded comment to the copy ingested
// from (originServiceID, originAlertID). The author label is derived from
// the sender's authorType and optional citizen id.
func (s *IngestionService) AddExternalComment(ctx context.Context, originServiceID, originAlertID, authorType, citizenID, text string) (*domain.DomainComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidPayload
	}
	rec, err := s.Repo.FindByOriginRef(ctx, s.DB, originServiceID, originAlertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	author := strings.TrimSpace(authorType)
	if author == "" {
		author = "external"
	}
	if citizenID != "" {
		author = author + ":" + citizenID
	}
	return s.Repo.AppendDomainComment(ctx, s.DB, rec.ID, author, text)
}

func validateIngest(p relay.AlertPayload) error {
	if strings.TrimSpace(p.AlertID) == "" {
		return ErrInvalidPayload
	}
	if strings.TrimSpace(p.Category) == "" || strings.TrimSpace(p.Description) == "" {
		return ErrInvalidPayload
	}
	// A payload that never carried a location decodes to a nil pointer;
	// rejecting it here keeps records off the (0,0) ocean point.
	if p.Location == nil {
		return ErrInvalidPayload
	}
	pt := geo.Point{Lon: p.Location.Coordinates[0], Lat: p.Location.Coordinates[1]}
	if !pt.Valid() {
		return ErrInvalidPayload
	}
	if len(p.Proofs) == 0 {
		return ErrInvalidPayload
	}
	for _, proof := range p.Proofs {
		if strings.TrimSpace(proof.URL) == "" {
			return ErrInvalidPayload
		}
	}
	return nil
}

// buildTitle derives a short operator-facing title from the payload.
func buildTitle(p relay.AlertPayload) string {
	title := "Alerte " + strings.TrimSpace(p.Category)
	if p.Location != nil {
		if addr := strings.TrimSpace(p.Location.Address); addr != "" {
			title += " - " + addr
		}
	}
	if utf8.RuneCountInString(title) > titleMaxLen {
		title = string([]rune(title)[:titleMaxLen])
	}
	return title
}

// proofMime maps wire proof types onto concrete media types. Unknown
// types fall back to an opaque octet stream.
func proofMime(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "photo", "image":
		return "image/jpeg"
	case "video":
		return "video/mp4"
	case "audio":
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// proofFilename extracts the last path segment of the proof URL.
func proofFilename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "proof"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "proof"
	}
	return name
}
