// Package domain defines the persistence models for citizen alerts, their
// domain-side copies, risk zones, the service directory, and the relay
// outbox. These types are mapped with GORM and form the core data layer of
// the alert relay platform.
package domain

// AlertStatus is the citizen-facing alert lifecycle. It is deliberately
// coarser than the domain-internal vocabulary.
type AlertStatus string

// Citizen-facing statuses.
const (
	StatusPending    AlertStatus = "pending"
	StatusReceived   AlertStatus = "received"
	StatusProcessing AlertStatus = "processing"
	StatusResolved   AlertStatus = "resolved"
	StatusRejected   AlertStatus = "rejected"
)

// Valid reports whether s is a known citizen-facing status.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReceived, StatusProcessing, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// DomainStatus is the richer lifecycle owned by the receiving domain
// service. The domain service is the authority for operational state;
// citizen-facing records only ever see it through CitizenStatus.
type DomainStatus string

// Domain-internal statuses.
const (
	DomainStatusNew        DomainStatus = "new"
	DomainStatusAssigned   DomainStatus = "assigned"
	DomainStatusInProgress DomainStatus = "in_progress"
	DomainStatusResolved   DomainStatus = "resolved"
	DomainStatusClosed     DomainStatus = "closed"
)

// Valid reports whether s is a known domain-internal status.
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainStatusNew, DomainStatusAssigned, DomainStatusInProgress,
		DomainStatusResolved, DomainStatusClosed:
		return true
	}
	return false
}

// CitizenStatus maps a domain-internal status onto the citizen-facing
// vocabulary. "new" maps to received: once a domain copy exists the alert
// has demonstrably arrived at the owning service. The second return is
// false for unknown statuses.
func CitizenStatus(s DomainStatus) (AlertStatus, bool) {
	switch s {
	case DomainStatusNew:
		return StatusReceived, true
	case DomainStatusAssigned, DomainStatusInProgress:
		return StatusProcessing, true
	case DomainStatusResolved:
		return StatusResolved, true
	case DomainStatusClosed:
		return StatusRejected, true
	}
	return "", false
}

// RiskLevel grades a zone's known hygiene/security risk.
type RiskLevel string

// Zone risk levels.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}
