// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Zone model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
)

// riskOrder sorts zones critical-first; SQLite would otherwise order the
// textual risk_level column alphabetically.
const riskOrder = "CASE risk_level WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END"

// CreateZone inserts a zone row and returns ErrDuplicate when the name is
// already taken.
func CreateZone(ctx context.Context, db *gorm.DB, z *domain.Zone) error {
	if err := db.WithContext(ctx).Create(z).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetZone fetches a single zone by ID, or ErrNotFound.
func GetZone(ctx context.Context, db *gorm.DB, id string) (*domain.Zone, error) {
	var z domain.Zone
	if err := db.WithContext(ctx).Where("id = ?", id).First(&z).Error; err != nil {
		return nil, err
	}
	return &z, nil
}

// CountZones returns the number of zones matching the risk filter. An
// empty filter matches everything.
func CountZones(ctx context.Context, db *gorm.DB, risk domain.RiskLevel) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Zone{})
	if risk != "" {
		q = q.Where("risk_level = ?", risk)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListZonesPage returns a paginated slice of zones matching the risk
// filter, riskiest and busiest first.
func ListZonesPage(ctx context.Context, db *gorm.DB, risk domain.RiskLevel, offset, limit int) ([]domain.Zone, error) {
	var out []domain.Zone
	q := db.WithContext(ctx)
	if risk != "" {
		q = q.Where("risk_level = ?", risk)
	}
	err := q.
		Order(riskOrder).
		Order("alert_count desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAllZones returns every zone, the working set for the containment
// scan. The scan is linear over this slice; it is expected to stay small
// (hundreds of zones, not millions).
func ListAllZones(ctx context.Context, db *gorm.DB) ([]domain.Zone, error) {
	var out []domain.Zone
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}

// IncrementZoneAlert bumps a zone's alert counter and refreshes its last
// alert date in a single statement. The counter moves in the database, not
// in application memory, so concurrent correlations never lose increments.
func IncrementZoneAlert(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Zone{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"alert_count":     gorm.Expr("alert_count + 1"),
			"last_alert_date": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchInspection records an inspection visit on a zone. It returns
// ErrNotFound when the zone does not exist.
func TouchInspection(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Zone{}).
		Where("id = ?", id).
		Update("last_inspection", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
