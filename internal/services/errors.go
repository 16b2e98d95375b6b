// Package services defines the business logic for alerts, ingestion, risk
// zones, and the status bridge. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Alert-related errors.
var (
	// ErrInvalidPayload is returned when a create or ingest request fails
	// structural validation (missing description, bad coordinates, no proofs).
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrAlertNotFound indicates that the requested alert does not exist or
	// is not accessible to the current caller.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidStatus is returned when a status value is outside the
	// vocabulary accepted by the operation.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrServiceUnavailable indicates that no active collaborating service
	// owns the requested category, or its directory entry has no base URL.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Zone-related errors.
var (
	// ErrZoneNotFound indicates that the requested zone does not exist.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrZoneExists is returned when a zone name is already taken.
	ErrZoneExists = errors.New("zone already exists")

	// ErrInvalidBoundary is returned when a zone boundary has fewer than
	// three distinct vertices.
	ErrInvalidBoundary = errors.New("invalid zone boundary")
)

// Directory-related errors.
var (
	// ErrServiceExists is returned when a directory entry id is already taken.
	ErrServiceExists = errors.New("service already registered")
)
