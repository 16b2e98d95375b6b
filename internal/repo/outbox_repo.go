// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the relay
// outbox used to retry failed outbound pushes.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
)

// EnqueueOutbox persists an outbound message for later delivery by the
// background worker. The caller populates ID, kind, target and payload.
func EnqueueOutbox(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) error {
	return db.WithContext(ctx).Create(msg).Error
}

// DueOutbox returns pending messages whose next attempt time has passed,
// oldest due first, capped at limit rows.
func DueOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	q := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.OutboxPending, now).
		Order("next_attempt_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkOutboxDelivered finalizes a message after a successful push.
func MarkOutboxDelivered(ctx context.Context, db *gorm.DB, id string, attempts int) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.OutboxDelivered,
			"attempts":   attempts,
			"last_error": "",
		}).Error
}

// RescheduleOutbox records a failed attempt and pushes the next one out to
// nextAt.
func RescheduleOutbox(ctx context.Context, db *gorm.DB, id string, attempts int, nextAt time.Time, lastErr string) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.OutboxPending,
			"attempts":        attempts,
			"next_attempt_at": nextAt,
			"last_error":      lastErr,
		}).Error
}

// MarkOutboxFailed parks a message permanently after the attempt budget is
// exhausted. Failed rows are kept for operator inspection, never retried.
func MarkOutboxFailed(ctx context.Context, db *gorm.DB, id string, attempts int, lastErr string) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.OutboxFailed,
			"attempts":   attempts,
			"last_error": lastErr,
		}).Error
}
