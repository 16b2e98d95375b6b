package domain

import (
	"time"
)

// ProofKind identifies the media type of a proof descriptor.
type ProofKind string

// Proof kinds accepted from citizens.
const (
	ProofImage ProofKind = "image"
	ProofVideo ProofKind = "video"
	ProofAudio ProofKind = "audio"
)

// Valid reports whether k is a known proof kind.
func (k ProofKind) Valid() bool {
	switch k {
	case ProofImage, ProofVideo, ProofAudio:
		return true
	}
	return false
}

// Alert is the canonical citizen-facing alert record, owned by the
// producer side. It is created once by the citizen flow and only ever
// appended to (status history, comments) or given a relay reference;
// this subsystem never deletes it.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CitizenID: reporting citizen, nil when the alert is anonymous.
//   - ServiceID: directory id of the domain service owning the category.
//   - Lon/Lat: GeoJSON-ordered [longitude, latitude] point.
//   - Status: citizen-facing lifecycle (coarser than the domain's).
//   - RelayReference: the domain service's copy id, set at most once
//     after a successful relay.
type Alert struct {
	ID          string  `json:"id"          gorm:"type:char(36);primaryKey"`
	CitizenID   *string `json:"citizen_id"  gorm:"type:varchar(64);index:idx_citizen_alerts"`
	ServiceID   string  `json:"service_id"  gorm:"type:char(36);not null;index"`
	Category    string  `json:"category"    gorm:"type:varchar(64);not null"`
	Description string  `json:"description" gorm:"type:text;not null"`
	Lon         float64 `json:"lon"         gorm:"not null"`
	Lat         float64 `json:"lat"         gorm:"not null"`
	Address     string  `json:"address"     gorm:"type:varchar(255)"`
	IsAnonymous bool    `json:"is_anonymous" gorm:"not null;default:false"`

	Status AlertStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','received','processing','resolved','rejected')"`

	// RelayReference points at the domain service's local copy. NULL until
	// the first successful relay; never overwritten afterwards.
	RelayReference *string `json:"relay_reference" gorm:"type:char(36)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Proofs        []Proof        `json:"proofs"         gorm:"foreignKey:AlertID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	StatusHistory []StatusChange `json:"status_history" gorm:"foreignKey:AlertID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Comments      []AlertComment `json:"comments"       gorm:"foreignKey:AlertID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Alert.
func (Alert) TableName() string { return "alerts" }

// Proof is one ordered proof descriptor attached to an alert: the kind of
// media and its storage locator. At least one proof is mandatory at alert
// creation.
type Proof struct {
	ID       string    `json:"id"       gorm:"type:char(36);primaryKey"`
	AlertID  string    `json:"-"        gorm:"type:char(36);not null;index:idx_alert_proofs,priority:1"`
	Kind     ProofKind `json:"kind"     gorm:"type:varchar(8);not null;check:kind IN ('image','video','audio')"`
	URL      string    `json:"url"      gorm:"type:varchar(512);not null"`
	Position int       `json:"position" gorm:"not null;index:idx_alert_proofs,priority:2"`
}

// TableName returns the database table name for Proof.
func (Proof) TableName() string { return "alert_proofs" }

// StatusChange is one append-only entry in an alert's status history.
type StatusChange struct {
	ID        string      `json:"id"      gorm:"type:char(36);primaryKey"`
	AlertID   string      `json:"-"       gorm:"type:char(36);not null;index:idx_alert_history,priority:1"`
	Status    AlertStatus `json:"status"  gorm:"type:varchar(16);not null"`
	Comment   string      `json:"comment" gorm:"type:text"`
	Actor     string      `json:"actor"   gorm:"type:varchar(128)"`
	CreatedAt time.Time   `json:"created_at" gorm:"index:idx_alert_history,priority:2"`
}

// TableName returns the database table name for StatusChange.
func (StatusChange) TableName() string { return "alert_status_history" }

// AlertComment is a comment on the citizen-facing record, either from the
// citizen or pushed back by the owning domain service.
type AlertComment struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	AlertID     string    `json:"-"            gorm:"type:char(36);not null;index"`
	Author      string    `json:"author"       gorm:"type:varchar(128);not null"`
	Text        string    `json:"text"         gorm:"type:text;not null"`
	FromService bool      `json:"from_service" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for AlertComment.
func (AlertComment) TableName() string { return "alert_comments" }
