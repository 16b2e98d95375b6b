// Package services – AlertService
//
// This file implements the AlertService, the producer side of the relay
// pipeline. It validates citizen reports, persists them with their proof
// descriptors and an initial status history entry, resolves the owning
// collaborating service from the directory, and pushes a copy of the alert
// to it. Relay failure never fails the creation: the alert is kept, a
// system comment records the failure, and delivery is handed to the
// durable outbox.
//
// Service-level errors (e.g., ErrAlertNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/relay"
)

// AlertRepo defines the repository contract required by AlertService.
type AlertRepo interface {
	CreateAlert(ctx context.Context, db *gorm.DB, a *domain.Alert) error
	GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.Alert, error)
	CountAlertsByCitizen(ctx context.Context, db *gorm.DB, citizenID string) (int64, error)
	ListAlertsByCitizenPage(ctx context.Context, db *gorm.DB, citizenID string, offset, limit int) ([]domain.Alert, error)
	ListAlertsInBox(ctx context.Context, db *gorm.DB, minLat, maxLat, minLon, maxLon float64, limit int) ([]domain.Alert, error)
	AppendAlertComment(ctx context.Context, db *gorm.DB, alertID, author, text string, fromService bool) (*domain.AlertComment, error)
	AppendStatusChange(ctx context.Context, db *gorm.DB, alertID string, status domain.AlertStatus, comment, actor string) error
	SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error
}

// Directory defines the service-directory lookups used by the relay path.
type Directory interface {
	GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error)
	FindServiceByCategory(ctx context.Context, db *gorm.DB, category string) (*domain.Service, error)
}

// AlertPusher is the outbound client surface used by AlertService.
type AlertPusher interface {
	PushAlert(ctx context.Context, baseURL string, payload relay.AlertPayload) (string, error)
	PushComment(ctx context.Context, baseURL, reference string, payload relay.CommentPayload) error
}

// OutboxWriter persists failed pushes for the retry worker.
type OutboxWriter interface {
	EnqueueOutbox(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) error
}

// ProofInput is one proof descriptor supplied at alert creation.
type ProofInput struct {
	Kind domain.ProofKind
	URL  string
}

// CreateAlertInput carries a validated-to-be citizen report.
type CreateAlertInput struct {
	CitizenID   string
	Category    string
	Description string
	Lon         float64
	Lat         float64
	Address     string
	IsAnonymous bool
	Proofs      []ProofInput
}

// NearbyAlert is an alert annotated with its distance from the query point.
type NearbyAlert struct {
	Alert      domain.Alert `json:"alert"`
	DistanceKm float64      `json:"distance_km"`
}

// nearbyCap bounds the nearby result set regardless of radius.
const nearbyCap = 50

// AlertService provides citizen-facing alert operations: creation with
// relay, retrieval, comments, status webhook application, and proximity
// search.
type AlertService struct {
	DB        *gorm.DB
	Repo      AlertRepo
	Directory Directory
	Relay     AlertPusher
	Outbox    OutboxWriter

	// NearbyMaxKm caps the radius accepted by Nearby.
	NearbyMaxKm float64
	// RetryBackoff is the delay before the outbox worker's first retry.
	RetryBackoff time.Duration

	Log zerolog.Logger
}

// Create validates and persists a citizen report, then relays it to the
// owning collaborating service. The relay outcome never rolls back the
// stored alert.
func (s *AlertService) Create(ctx context.Context, in CreateAlertInput) (*domain.Alert, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	svc, err := s.Directory.FindServiceByCategory(ctx, s.DB, in.Category)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceUnavailable
		}
		return nil, err
	}
	if !svc.Reachable() {
		return nil, ErrServiceUnavailable
	}

	now := time.Now().UTC()
	a := &domain.Alert{
		ID:          uuid.NewString(),
		ServiceID:   svc.ID,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		Lon:         in.Lon,
		Lat:         in.Lat,
		Address:     strings.TrimSpace(in.Address),
		IsAnonymous: in.IsAnonymous,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		StatusHistory: []domain.StatusChange{
			{ID: uuid.NewString(), Status: domain.StatusPending, Actor: "citizen", CreatedAt: now},
		},
	}
	if !in.IsAnonymous {
		cid := strings.TrimSpace(in.CitizenID)
		a.CitizenID = &cid
	}
	for i, p := range in.Proofs {
		a.Proofs = append(a.Proofs, domain.Proof{
			ID:       uuid.NewString(),
			Kind:     p.Kind,
			URL:      strings.TrimSpace(p.URL),
			Position: i,
		})
	}

	if err := s.Repo.CreateAlert(ctx, s.DB, a); err != nil {
		return nil, err
	}

	s.relayCreated(ctx, a, svc)
	return a, nil
}

// relayCreated pushes the stored alert to its owning service. On success
// the returned reference is recorded once; on failure the alert gains a
// system comment and the payload is queued for the retry worker.
func (s *AlertService) relayCreated(ctx context.Context, a *domain.Alert, svc *domain.Service) {
	payload := relay.BuildAlertPayload(a)

	ref, err := s.Relay.PushAlert(ctx, svc.BaseURL, payload)
	if err == nil && ref != "" {
		if err := s.Repo.SetRelayReference(ctx, s.DB, a.ID, ref); err != nil {
			s.Log.Error().Err(err).Str("alert_id", a.ID).Msg("store relay reference")
			return
		}
		a.RelayReference = &ref
		return
	}

	s.Log.Warn().Err(err).Str("alert_id", a.ID).Str("service", svc.ID).Msg("relay failed, queueing retry")

	if _, cerr := s.Repo.AppendAlertComment(ctx, s.DB, a.ID, "system",
		"Transmission au service en attente, nouvel essai automatique.", true); cerr != nil {
		s.Log.Error().Err(cerr).Str("alert_id", a.ID).Msg("append relay failure comment")
	}

	body, merr := json.Marshal(payload)
	if merr != nil {
		s.Log.Error().Err(merr).Str("alert_id", a.ID).Msg("marshal outbox payload")
		return
	}
	msg := &domain.OutboxMessage{
		ID:              uuid.NewString(),
		Kind:            domain.OutboxAlertRelay,
		TargetServiceID: svc.ID,
		Path:            "/external/alerts",
		Body:            string(body),
		RecordID:        a.ID,
		Attempts:        1,
		NextAttemptAt:   time.Now().UTC().Add(s.RetryBackoff),
		Status:          domain.OutboxPending,
		LastError:       errString(err),
		CreatedAt:       time.Now().UTC(),
	}
	if qerr := s.Outbox.EnqueueOutbox(ctx, s.DB, msg); qerr != nil {
		s.Log.Error().Err(qerr).Str("alert_id", a.ID).Msg("enqueue relay retry")
	}
}

// Get returns a single alert owned by citizenID, or ErrAlertNotFound.
// Ownership is part of the lookup: foreign alerts are indistinguishable
// from missing ones.
func (s *AlertService) Get(ctx context.Context, citizenID, alertID string) (*domain.Alert, error) {
	a, err := s.Repo.GetAlert(ctx, s.DB, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if a.CitizenID == nil || *a.CitizenID != citizenID {
		return nil, ErrAlertNotFound
	}
	return a, nil
}

// ListMine returns a page of the citizen's alerts plus the total count.
func (s *AlertService) ListMine(ctx context.Context, citizenID string, page, pageSize int) ([]domain.Alert, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := s.Repo.CountAlertsByCitizen(ctx, s.DB, citizenID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Alert{}, 0, nil
	}
	items, err := s.Repo.ListAlertsByCitizenPage(ctx, s.DB, citizenID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// AddComment appends a citizen comment and forwards it, best effort, to
// the domain copy when one exists. Forwarding failure never fails the
// local comment.
func (s *AlertService) AddComment(ctx context.Context, citizenID, alertID, text string) (*domain.AlertComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidPayload
	}
	a, err := s.Get(ctx, citizenID, alertID)
	if err != nil {
		return nil, err
	}

	c, err := s.Repo.AppendAlertComment(ctx, s.DB, a.ID, citizenID, text, false)
	if err != nil {
		return nil, err
	}

	if a.RelayReference != nil {
		svc, derr := s.Directory.GetService(ctx, s.DB, a.ServiceID)
		if derr != nil || !svc.Reachable() {
			s.Log.Warn().Err(derr).Str("alert_id", a.ID).Msg("comment forward skipped, service unreachable")
			return c, nil
		}
		// The receiving side keys comments by the originating alert id,
		// not by its own reference.
		ferr := s.Relay.PushComment(ctx, svc.BaseURL, a.ID, relay.CommentPayload{
			Text:       text,
			AuthorType: "citizen",
			CitizenID:  citizenID,
		})
		if ferr != nil {
			s.Log.Warn().Err(ferr).Str("alert_id", a.ID).Msg("comment forward failed")
		}
	}
	return c, nil
}

// ApplyStatusPush applies a status change pushed back by the owning
// service's webhook. The domain vocabulary is mapped onto the
// citizen-facing one before persisting.
func (s *AlertService) ApplyStatusPush(ctx context.Context, alertID, domainStatus, comment, updatedBy string) (domain.AlertStatus, error) {
	mapped, ok := domain.CitizenStatus(domain.DomainStatus(domainStatus))
	if !ok {
		return "", ErrInvalidStatus
	}
	actor := strings.TrimSpace(updatedBy)
	if actor == "" {
		actor = "service"
	}
	if err := s.Repo.AppendStatusChange(ctx, s.DB, alertID, mapped, comment, actor); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrAlertNotFound
		}
		return "", err
	}
	return mapped, nil
}

// Nearby returns non-anonymous alerts within radiusKm of the point,
// closest first, capped at 50. The radius is clamped to NearbyMaxKm.
func (s *AlertService) Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]NearbyAlert, error) {
	if !p.Valid() {
		return nil, ErrInvalidPayload
	}
	if radiusKm <= 0 || radiusKm > s.NearbyMaxKm {
		radiusKm = s.NearbyMaxKm
	}

	// Cheap bounding box first, exact distance cut after.
	latDelta := radiusKm / 111.0
	lonScale := math.Cos(p.Lat * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01
	}
	lonDelta := radiusKm / (111.0 * lonScale)

	candidates, err := s.Repo.ListAlertsInBox(ctx, s.DB,
		p.Lat-latDelta, p.Lat+latDelta,
		p.Lon-lonDelta, p.Lon+lonDelta,
		500)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyAlert, 0, len(candidates))
	for _, a := range candidates {
		d := geo.HaversineKm(p, geo.Point{Lon: a.Lon, Lat: a.Lat})
		if d <= radiusKm {
			out = append(out, NearbyAlert{Alert: a, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > nearbyCap {
		out = out[:nearbyCap]
	}
	return out, nil
}

func validateCreate(in CreateAlertInput) error {
	if strings.TrimSpace(in.Description) == "" {
		return ErrInvalidPayload
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrInvalidPayload
	}
	if !(geo.Point{Lon: in.Lon, Lat: in.Lat}).Valid() {
		return ErrInvalidPayload
	}
	if !in.IsAnonymous && strings.TrimSpace(in.CitizenID) == "" {
		return ErrInvalidPayload
	}
	if len(in.Proofs) == 0 {
		return ErrInvalidPayload
	}
	for _, p := range in.Proofs {
		if !p.Kind.Valid() || strings.TrimSpace(p.URL) == "" {
			return ErrInvalidPayload
		}
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
