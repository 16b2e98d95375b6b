// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// consumer-side DomainAlert aggregate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
)

// CreateDomainAlert inserts a domain-side copy of a relayed alert together
// with its attachments. The ux_origin_ref unique index is the dedup
// authority: a retransmission of an already ingested alert fails the
// insert and surfaces as ErrDuplicate, never as a second row.
func CreateDomainAlert(ctx context.Context, db *gorm.DB, rec *domain.DomainAlert) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindByOriginRef fetches the domain alert ingested from the given
// (originServiceID, originAlertID) pair, or ErrNotFound.
func FindByOriginRef(ctx context.Context, db *gorm.DB, originServiceID, originAlertID string) (*domain.DomainAlert, error) {
	var rec domain.DomainAlert
	err := db.WithContext(ctx).
		Where("origin_service_id = ? AND origin_alert_id = ?", originServiceID, originAlertID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDomainAlert fetches a single domain alert by ID with its attachments
// and comments, or ErrNotFound.
func GetDomainAlert(ctx context.Context, db *gorm.DB, id string) (*domain.DomainAlert, error) {
	var rec domain.DomainAlert
	err := db.WithContext(ctx).
		Preload("Attachments").
		Preload("Comments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountDomainAlerts returns the number of domain alerts matching the given
// filters. Empty filter values match everything.
func CountDomainAlerts(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string) (int64, error) {
	var total int64
	err := domainAlertFilter(db.WithContext(ctx).Model(&domain.DomainAlert{}), status, category).
		Count(&total).Error
	return total, err
}

// ListDomainAlertsPage returns a paginated slice of domain alerts matching
// the given filters, most recent first. Use CountDomainAlerts to obtain
// the total for pagination metadata.
func ListDomainAlertsPage(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string, offset, limit int) ([]domain.DomainAlert, error) {
	var out []domain.DomainAlert
	err := domainAlertFilter(db.WithContext(ctx), status, category).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func domainAlertFilter(q *gorm.DB, status domain.DomainStatus, category string) *gorm.DB {
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	return q
}

// UpdateDomainStatus moves a domain alert to the given status. It returns
// ErrNotFound when no such alert exists.
func UpdateDomainStatus(ctx context.Context, db *gorm.DB, id string, status domain.DomainStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendDomainComment creates a comment row on a domain alert. It returns
// ErrNotFound when the alert does not exist.
func AppendDomainComment(ctx context.Context, db *gorm.DB, domainAlertID, author, text string) (*domain.DomainComment, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.DomainAlert{}).Where("id = ?", domainAlertID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	c := &domain.DomainComment{
		ID:            uuid.NewString(),
		DomainAlertID: domainAlertID,
		Author:        author,
		Text:          text,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// MarkZoneUpdated flips the zone_updated flag on a domain alert. The
// guarded WHERE clause makes the flip exactly-once: it reports true only
// for the caller that actually performed the transition, so concurrent
// retries of the correlation step move zone counters at most once.
func MarkZoneUpdated(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Where("id = ? AND zone_updated = ?", id, false).
		Update("zone_updated", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListDomainAlertCoordinates returns the coordinates of every domain alert
// as a flat point slice, the snapshot the hotspot scan runs over.
func ListDomainAlertCoordinates(ctx context.Context, db *gorm.DB) ([]geo.Point, error) {
	var rows []struct {
		Lon float64
		Lat float64
	}
	err := db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Select("lon, lat").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]geo.Point, 0, len(rows))
	for _, r := range rows {
		out = append(out, geo.Point{Lon: r.Lon, Lat: r.Lat})
	}
	return out, nil
}
