// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the service
// directory.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
)

// CreateService inserts a directory entry and returns ErrDuplicate when
// the id is already registered.
func CreateService(ctx context.Context, db *gorm.DB, s *domain.Service) error {
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetService fetches a directory entry by ID, or ErrNotFound.
func GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error) {
	var s domain.Service
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindServiceByCategory returns the active service owning the given alert
// category, or ErrNotFound. Categories map to at most one service; when
// several rows match, the oldest entry wins.
func FindServiceByCategory(ctx context.Context, db *gorm.DB, category string) (*domain.Service, error) {
	var s domain.Service
	err := db.WithContext(ctx).
		Where("category = ? AND is_active = ?", category, true).
		Order("created_at asc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns directory entries ordered by name. With activeOnly
// set, inactive services are filtered out.
func ListServices(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Service, error) {
	q := db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.Service
	err := q.Order("name asc").Find(&out).Error
	return out, err
}
