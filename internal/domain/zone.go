package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/iburossy/bolle-backend/internal/geo"
)

// Ring is a polygon boundary stored as a JSON array of [lon,lat] points in
// a TEXT column. A well-formed ring is closed (first vertex equals the
// last) and has at least 3 distinct vertices; degenerate rings are kept
// out at creation time and skipped silently during correlation.
type Ring []geo.Point

// Value implements driver.Valuer, serializing the ring as JSON.
func (r Ring) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, accepting TEXT or BLOB JSON.
func (r *Ring) Scan(v any) error {
	switch data := v.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(data, r)
	case string:
		return json.Unmarshal([]byte(data), r)
	}
	return errors.New("ring: unsupported column type")
}

// Closed reports whether the ring's first and last vertices coincide.
func (r Ring) Closed() bool {
	return len(r) >= 2 && r[0] == r[len(r)-1]
}

// DistinctVertices counts unique vertices in the ring.
func (r Ring) DistinctVertices() int {
	seen := make(map[geo.Point]struct{}, len(r))
	for _, p := range r {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// Zone is a named polygonal risk area tracked for alert density. Its
// counter is mutated only by the correlation step and only upward; this
// subsystem never decrements it.
type Zone struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(128);not null;uniqueIndex:ux_zone_name"`
	Description string    `json:"description" gorm:"type:text"`
	RiskLevel   RiskLevel `json:"risk_level"  gorm:"type:varchar(16);not null;index;check:risk_level IN ('low','medium','high','critical')"`

	Boundary Ring `json:"boundary" gorm:"type:text;not null"`

	AlertCount      int64      `json:"alert_count" gorm:"not null;default:0"`
	LastAlertDate   *time.Time `json:"last_alert_date"`
	LastInspection  *time.Time `json:"last_inspection"`
	ResponsibleTeam *string    `json:"responsible_team" gorm:"type:varchar(64)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Zone.
func (Zone) TableName() string { return "zones" }

// NeedsInspection reports whether the zone is overdue for inspection
// given a baseline threshold in days. The threshold shrinks for risky
// zones and stretches for low-risk ones; a zone with no recorded
// inspection is always due.
func (z *Zone) NeedsInspection(now time.Time, daysThreshold float64) bool {
	if z.LastInspection == nil {
		return true
	}

	adjusted := daysThreshold
	switch z.RiskLevel {
	case RiskCritical:
		adjusted = daysThreshold / 4
	case RiskHigh:
		adjusted = daysThreshold / 2
	case RiskLow:
		adjusted = daysThreshold * 1.5
	}

	days := now.Sub(*z.LastInspection).Hours() / 24
	return days >= adjusted
}

// Contains reports whether the zone's boundary contains p. Degenerate
// boundaries never match.
func (z *Zone) Contains(p geo.Point) bool {
	if z.Boundary.DistinctVertices() < 3 {
		return false
	}
	return geo.PointInPolygon(p, z.Boundary)
}
