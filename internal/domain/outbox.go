package domain

import "time"

// Outbox message kinds.
const (
	OutboxAlertRelay = "alert_relay"
	OutboxStatusPush = "status_push"
)

// Outbox message states.
const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxFailed    = "failed"
)

// OutboxMessage is a persisted outbound delivery attempt: a relay push or
// a status push that failed on the request path and is retried with
// exponential backoff by the background worker. The request path itself
// never retries and never blocks on delivery.
type OutboxMessage struct {
	ID              string `json:"id"   gorm:"type:char(36);primaryKey"`
	Kind            string `json:"kind" gorm:"type:varchar(16);not null;check:kind IN ('alert_relay','status_push')"`
	TargetServiceID string `json:"target_service_id" gorm:"type:char(36);not null"`

	// Path is the request path relative to the target's base URL.
	Path string `json:"path" gorm:"type:varchar(255);not null"`
	// Body is the JSON payload to deliver verbatim.
	Body string `json:"body" gorm:"type:text;not null"`

	// RecordID links alert_relay messages back to the producer-side alert
	// so a late success can still set the relay reference.
	RecordID string `json:"record_id" gorm:"type:char(36);index"`

	Attempts      int       `json:"attempts"        gorm:"not null;default:0"`
	NextAttemptAt time.Time `json:"next_attempt_at" gorm:"not null;index:idx_outbox_due,priority:2"`
	Status        string    `json:"status"          gorm:"type:varchar(16);not null;default:'pending';index:idx_outbox_due,priority:1;check:status IN ('pending','delivered','failed')"`
	LastError     string    `json:"last_error"      gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for OutboxMessage.
func (OutboxMessage) TableName() string { return "relay_outbox" }
