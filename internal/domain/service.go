package domain

import "time"

// Service is an entry in the service directory: a domain-specific backend
// that owns one alert category. The relay client consults the directory
// before every push; only active services with a base URL are reachable.
type Service struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	Name     string `json:"name"      gorm:"type:varchar(128);not null"`
	Category string `json:"category"  gorm:"type:varchar(64);not null;index"`
	BaseURL  string `json:"base_url"  gorm:"type:varchar(255);not null"`
	IsActive bool   `json:"is_active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Service.
func (Service) TableName() string { return "services" }

// Reachable reports whether the service can be targeted by a relay push.
func (s *Service) Reachable() bool {
	return s.IsActive && s.BaseURL != ""
}
