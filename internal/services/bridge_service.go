// Package services – BridgeService
//
// This file implements the status bridge: the domain side is the
// authority for operational state, and every durable status change is
// pushed back to the origin service's webhook so the citizen-facing
// record follows. Push failure is absorbed into the outbox and never
// rolls back the local change.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/relay"
)

// StatusPusher is the outbound client surface used by BridgeService.
type StatusPusher interface {
	PushStatus(ctx context.Context, baseURL string, payload relay.StatusPayload) error
}

// BridgeService propagates domain-side status changes to origin services.
type BridgeService struct {
	DB        *gorm.DB
	Repo      DomainAlertRepo
	Directory Directory
	Relay     StatusPusher
	Outbox    OutboxWriter

	// RetryBackoff is the delay before the outbox worker's first retry.
	RetryBackoff time.Duration

	Log zerolog.Logger
}

// UpdateStatus validates and persists a domain status change, appends the
// optional operator comment, and pushes the change to the origin service.
// The local change is durable before any push is attempted.
func (s *BridgeService) UpdateStatus(ctx context.Context, id, status, comment, updatedBy string) (*domain.DomainAlert, error) {
	newStatus := domain.DomainStatus(status)
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	rec, err := s.Repo.GetDomainAlert(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	if err := s.Repo.UpdateDomainStatus(ctx, s.DB, rec.ID, newStatus); err != nil {
		return nil, err
	}
	rec.Status = newStatus

	comment = strings.TrimSpace(comment)
	if comment != "" {
		author := strings.TrimSpace(updatedBy)
		if author == "" {
			author = "operator"
		}
		if _, cerr := s.Repo.AppendDomainComment(ctx, s.DB, rec.ID, author, comment); cerr != nil {
			s.Log.Error().Err(cerr).Str("domain_alert_id", rec.ID).Msg("append status comment")
		}
	}

	s.pushStatus(ctx, rec, comment, updatedBy)
	return rec, nil
}

// pushStatus delivers the change to the origin service's webhook, falling
// back to the outbox when the push fails or the service is unreachable.
func (s *BridgeService) pushStatus(ctx context.Context, rec *domain.DomainAlert, comment, updatedBy string) {
	payload := relay.StatusPayload{
		AlertID:   rec.OriginAlertID,
		Status:    string(rec.Status),
		Comment:   comment,
		UpdatedBy: updatedBy,
	}

	svc, err := s.Directory.GetService(ctx, s.DB, rec.OriginServiceID)
	switch {
	case err != nil:
	case !svc.Reachable():
		err = ErrServiceUnavailable
	default:
		if err = s.Relay.PushStatus(ctx, svc.BaseURL, payload); err == nil {
			return
		}
	}

	s.Log.Warn().Err(err).
		Str("domain_alert_id", rec.ID).
		Str("origin_service", rec.OriginServiceID).
		Msg("status push failed, queueing retry")

	body, merr := json.Marshal(payload)
	if merr != nil {
		s.Log.Error().Err(merr).Str("domain_alert_id", rec.ID).Msg("marshal status payload")
		return
	}
	msg := &domain.OutboxMessage{
		ID:              uuid.NewString(),
		Kind:            domain.OutboxStatusPush,
		TargetServiceID: rec.OriginServiceID,
		Path:            "/webhooks/alert-status",
		Body:            string(body),
		RecordID:        rec.ID,
		Attempts:        1,
		NextAttemptAt:   time.Now().UTC().Add(s.RetryBackoff),
		Status:          domain.OutboxPending,
		LastError:       errString(err),
		CreatedAt:       time.Now().UTC(),
	}
	if qerr := s.Outbox.EnqueueOutbox(ctx, s.DB, msg); qerr != nil {
		s.Log.Error().Err(qerr).Str("domain_alert_id", rec.ID).Msg("enqueue status retry")
	}
}
