// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries
// surfaced by the stats endpoints. Each function is context-aware and safe
// to call from services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/classify"
	"github.com/iburossy/bolle-backend/internal/domain"
)

// AlertStatusCounts returns how many citizen alerts sit in each status.
// Statuses with no rows are absent from the map.
func AlertStatusCounts(ctx context.Context, db *gorm.DB) (map[domain.AlertStatus]int64, error) {
	var rows []struct {
		Status domain.AlertStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Alert{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.AlertStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// StatusRollup folds the domain statuses into the citizen-facing
// vocabulary. "new" reports as pending here: the copy exists but no
// operator has acted on it yet.
type StatusRollup struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Resolved   int64 `json:"resolved"`
	Rejected   int64 `json:"rejected"`
}

// DomainAlertStats is the rollup served to domain operators: totals plus
// per-status and per-priority breakdowns, and the citizen-vocabulary
// summary of the same records.
type DomainAlertStats struct {
	Total      int64                         `json:"total"`
	ByStatus   map[domain.DomainStatus]int64 `json:"by_status"`
	ByPriority map[classify.Priority]int64   `json:"by_priority"`
	ByCategory map[string]int64              `json:"by_category"`
	Rollup     StatusRollup                  `json:"rollup"`
}

// CollectDomainAlertStats computes the rollup with three grouped queries.
// Group keys with no rows are absent from their maps.
func CollectDomainAlertStats(ctx context.Context, db *gorm.DB) (*DomainAlertStats, error) {
	stats := &DomainAlertStats{
		ByStatus:   make(map[domain.DomainStatus]int64),
		ByPriority: make(map[classify.Priority]int64),
		ByCategory: make(map[string]int64),
	}

	var statusRows []struct {
		Status domain.DomainStatus
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&statusRows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range statusRows {
		stats.ByStatus[r.Status] = r.N
		stats.Total += r.N
		switch r.Status {
		case domain.DomainStatusNew:
			stats.Rollup.Pending += r.N
		case domain.DomainStatusAssigned, domain.DomainStatusInProgress:
			stats.Rollup.Processing += r.N
		case domain.DomainStatusResolved:
			stats.Rollup.Resolved += r.N
		case domain.DomainStatusClosed:
			stats.Rollup.Rejected += r.N
		}
	}

	var prioRows []struct {
		Priority classify.Priority
		N        int64
	}
	err = db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Select("priority, COUNT(*) AS n").
		Group("priority").
		Scan(&prioRows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range prioRows {
		stats.ByPriority[r.Priority] = r.N
	}

	var catRows []struct {
		Category string
		N        int64
	}
	err = db.WithContext(ctx).
		Model(&domain.DomainAlert{}).
		Select("category, COUNT(*) AS n").
		Group("category").
		Scan(&catRows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range catRows {
		stats.ByCategory[r.Category] = r.N
	}

	return stats, nil
}
