// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// citizen-facing Alert aggregate.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an alert is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert collided with a unique index
// (origin reference on domain alerts, name on zones).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateAlert inserts a fully composed alert row together with its proofs
// and initial status history entry in a single transaction. The caller is
// responsible for populating IDs, timestamps and associations.
func CreateAlert(ctx context.Context, db *gorm.DB, a *domain.Alert) error {
	return db.WithContext(ctx).Create(a).Error
}

// GetAlert fetches a single alert by ID with its proofs, ordered status
// history and comments. If the record does not exist, it returns
// ErrNotFound.
func GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.Alert, error) {
	var a domain.Alert
	err := db.WithContext(ctx).
		Preload("Proofs", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("StatusHistory", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Preload("Comments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAlertsByCitizen returns the total number of alerts reported by citizenID.
func CountAlertsByCitizen(ctx context.Context, db *gorm.DB, citizenID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("citizen_id = ?", citizenID).
		Count(&total).Error
	return total, err
}

// ListAlertsByCitizenPage returns a paginated slice of the citizen's alerts,
// most recent first. Use CountAlertsByCitizen to obtain the total for
// pagination metadata.
func ListAlertsByCitizenPage(ctx context.Context, db *gorm.DB, citizenID string, offset, limit int) ([]domain.Alert, error) {
	var out []domain.Alert
	err := db.WithContext(ctx).
		Preload("Proofs", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("citizen_id = ?", citizenID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAlertsInBox returns non-anonymous alerts whose coordinates fall in
// the given bounding box, most recent first, capped at limit rows. The box
// is a cheap prefilter; callers apply the exact distance cut afterwards.
func ListAlertsInBox(ctx context.Context, db *gorm.DB, minLat, maxLat, minLon, maxLon float64, limit int) ([]domain.Alert, error) {
	var out []domain.Alert
	q := db.WithContext(ctx).
		Where("is_anonymous = ?", false).
		Where("lat BETWEEN ? AND ?", minLat, maxLat).
		Where("lon BETWEEN ? AND ?", minLon, maxLon).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// AppendAlertComment creates a comment row on an alert. It returns
// ErrNotFound when the alert does not exist.
func AppendAlertComment(ctx context.Context, db *gorm.DB, alertID, author, text string, fromService bool) (*domain.AlertComment, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Alert{}).Where("id = ?", alertID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	c := &domain.AlertComment{
		ID:          uuid.NewString(),
		AlertID:     alertID,
		Author:      author,
		Text:        text,
		FromService: fromService,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// AppendStatusChange moves an alert to the given status and records the
// transition in the history table, atomically. It returns ErrNotFound when
// the alert does not exist.
func AppendStatusChange(ctx context.Context, db *gorm.DB, alertID string, status domain.AlertStatus, comment, actor string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Alert{}).
			Where("id = ?", alertID).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&domain.StatusChange{
			ID:        uuid.NewString(),
			AlertID:   alertID,
			Status:    status,
			Comment:   comment,
			Actor:     actor,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
}

// SetRelayReference records the domain service's copy id on an alert. The
// update is guarded so an already-set reference is never overwritten:
// retried deliveries that land after the first success are no-ops. It
// returns ErrNotFound when the alert does not exist at all.
func SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error {
	res := db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("id = ? AND relay_reference IS NULL", alertID).
		Update("relay_reference", reference)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Alert{}).Where("id = ?", alertID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}
