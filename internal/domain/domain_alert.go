package domain

import (
	"time"

	"github.com/iburossy/bolle-backend/internal/classify"
)

// DomainAlert is the consumer-side copy of a relayed alert, owned by the
// receiving domain service. It is created once at the first successful
// ingestion of a given (origin_service_id, origin_alert_id) pair; the
// composite unique index makes retransmitted relays converge on the same
// row instead of racing an application-level find-then-create.
//
// Priority is derived from the description exactly once at ingestion and
// never recomputed. ZoneUpdated guards zone counters against
// double-counting when ingestion work is retried.
type DomainAlert struct {
	ID          string `json:"id"          gorm:"type:char(36);primaryKey"`
	Title       string `json:"title"       gorm:"type:varchar(100);not null"`
	Description string `json:"description" gorm:"type:text;not null"`
	Category    string `json:"category"    gorm:"type:varchar(64);not null;index:idx_domain_alerts_cat_status,priority:1"`

	Status   DomainStatus      `json:"status"   gorm:"type:varchar(16);not null;default:'new';index:idx_domain_alerts_cat_status,priority:2;check:status IN ('new','assigned','in_progress','resolved','closed')"`
	Priority classify.Priority `json:"priority" gorm:"type:varchar(16);not null;default:'medium';check:priority IN ('low','medium','high','critical')"`

	Lon     float64 `json:"lon"     gorm:"not null"`
	Lat     float64 `json:"lat"     gorm:"not null"`
	Address string  `json:"address" gorm:"type:varchar(255)"`

	CreatedBy string `json:"created_by" gorm:"type:varchar(128);not null"`

	// Dedup key: which service relayed the alert and under which id.
	OriginServiceID string  `json:"origin_service_id" gorm:"type:char(36);not null;uniqueIndex:ux_origin_ref,priority:1"`
	OriginAlertID   string  `json:"origin_alert_id"   gorm:"type:char(36);not null;uniqueIndex:ux_origin_ref,priority:2"`
	OriginCitizenID *string `json:"origin_citizen_id" gorm:"type:varchar(64)"`

	// ZoneUpdated flips to true the first time this record's location is
	// correlated against the zone store; counters move at most once.
	ZoneUpdated bool `json:"zone_updated" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Attachments []Attachment    `json:"attachments" gorm:"foreignKey:DomainAlertID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Comments    []DomainComment `json:"comments"    gorm:"foreignKey:DomainAlertID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DomainAlert.
func (DomainAlert) TableName() string { return "domain_alerts" }

// Attachment is a proof descriptor converted into the domain service's
// own media representation (filename, stored path, concrete MIME type).
type Attachment struct {
	ID            string    `json:"id"        gorm:"type:char(36);primaryKey"`
	DomainAlertID string    `json:"-"         gorm:"type:char(36);not null;index"`
	Filename      string    `json:"filename"  gorm:"type:varchar(255);not null"`
	Path          string    `json:"path"      gorm:"type:varchar(512);not null"`
	MimeType      string    `json:"mime_type" gorm:"type:varchar(64);not null"`
	Size          int64     `json:"size"      gorm:"not null;default:0"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// TableName returns the database table name for Attachment.
func (Attachment) TableName() string { return "domain_alert_attachments" }

// DomainComment is a comment on the domain-side record, authored by an
// operator or forwarded from the origin service.
type DomainComment struct {
	ID            string    `json:"id"     gorm:"type:char(36);primaryKey"`
	DomainAlertID string    `json:"-"      gorm:"type:char(36);not null;index"`
	Author        string    `json:"author" gorm:"type:varchar(128);not null"`
	Text          string    `json:"text"   gorm:"type:text;not null"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for DomainComment.
func (DomainComment) TableName() string { return "domain_alert_comments" }
