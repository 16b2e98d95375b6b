// Inter-service intake HTTP handlers.
//
// This file exposes the endpoints called by collaborating services over
// the relay protocol:
//   - POST /external/alerts                  (ingest a pushed alert)
//   - GET  /external/alerts                  (list domain copies, filtered)
//   - GET  /external/alerts/stats            (grouped statistics)
//   - GET  /external/alerts/{id}             (detail with zones)
//   - PUT  /external/alerts/{id}/status      (operator transition + push-back)
//   - POST /external/alerts/{id}/comments    (forwarded comment, by origin id)
//
// All routes in this group are behind the shared X-Service-Key check. The
// sending service identifies itself with X-Service-Id; the header defaults
// to the citizen platform, the only producer in the current deployment.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
	"github.com/iburossy/bolle-backend/internal/services"
)

// defaultOriginService is assumed when the sender does not identify
// itself. The citizen platform is the only producer today.
const defaultOriginService = "citizen-service"

//
// DTOs
//

// IngestAlertResponse acknowledges an ingested alert. ServiceReferenceID
// is the id of the local copy; the sender stores it as its relay
// reference. Duplicate deliveries are accepted and return the existing id.
type IngestAlertResponse struct {
	ServiceReferenceID string `json:"serviceReferenceId"`
	Accepted           bool   `json:"accepted"`
	Duplicate          bool   `json:"duplicate"`
	Priority           string `json:"priority"`
}

// DomainAlertDetail is a domain alert with the zones containing it.
type DomainAlertDetail struct {
	Alert domain.DomainAlert `json:"alert"`
	Zones []services.ZoneRef `json:"zones"`
}

// ListDomainAlertsResponse wraps a filtered page of domain alerts.
type ListDomainAlertsResponse struct {
	Alerts     []domain.DomainAlert `json:"alerts"`
	Pagination Pagination           `json:"pagination"`
}

// UpdateDomainStatusRequest is the JSON payload for a status transition.
type UpdateDomainStatusRequest struct {
	Status    string `json:"status" binding:"required" example:"in_progress"`
	Comment   string `json:"comment"`
	UpdatedBy string `json:"updatedBy" example:"operator-7"`
}

// ExternalCommentRequest is a comment forwarded by the origin service.
type ExternalCommentRequest struct {
	Text       string `json:"text" binding:"required,min=1"`
	AuthorType string `json:"authorType" example:"citizen"`
	CitizenID  string `json:"citizenId"`
}

// originService resolves the sending service id from the request.
func originService(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader(relay.HeaderServiceID)); h != "" {
		return h
	}
	return defaultOriginService
}

//
// Handlers
//

// IngestAlert godoc
// @ID          ingestAlert
// @Summary     Ingest a relayed alert
// @Description Stores the pushed alert as a local copy, classifies its priority, and correlates it against risk zones. Retransmissions of the same origin reference converge on the existing copy and are acknowledged as accepted.
// @Tags        External
// @Accept      json
// @Produce     json
//
// @Param       X-Service-Key  header  string  true   "Shared service secret"
// @Param       X-Service-Id   header  string  false  "Sending service id"  example(citizen-service)
// @Param       body           body    relay.AlertPayload  true  "Pushed alert"
//
// @Success     201  {object} handlers.IngestAlertResponse "Stored"
// @Success     200  {object} handlers.IngestAlertResponse "Duplicate, already stored"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts [post]
func (h *Handlers) IngestAlert(c *gin.Context) {
	var p relay.AlertPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.ingestSvc.Ingest(c.Request.Context(), originService(c), p)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "alertId, category, description, valid coordinates and proofs are required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	ok(c, status, IngestAlertResponse{
		ServiceReferenceID: res.ID,
		Accepted:           res.Accepted,
		Duplicate:          res.Duplicate,
		Priority:           string(res.Priority),
	})
}

// ListDomainAlerts godoc
// @ID          listDomainAlerts
// @Summary     List domain alerts (paginated)
// @Description Returns a page of ingested alerts, newest first, optionally filtered by status and category.
// @Tags        External
// @Produce     json
//
// @Param       X-Service-Key  header  string  true   "Shared service secret"
// @Param       status         query   string  false  "Filter by status"    Enums(new, assigned, in_progress, resolved, closed)
// @Param       category       query   string  false  "Filter by category"  example(hygiene)
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDomainAlertsResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown status filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts [get]
func (h *Handlers) ListDomainAlerts(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.ingestSvc.ListPage(
		c.Request.Context(),
		domain.DomainStatus(strings.TrimSpace(c.Query("status"))),
		strings.TrimSpace(c.Query("category")),
		page, pageSize,
	)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "unknown status filter")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListDomainAlertsResponse{
		Alerts:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetDomainAlert godoc
// @ID          getDomainAlert
// @Summary     Get one domain alert
// @Description Returns an ingested alert with attachments, comments, and the risk zones containing its location.
// @Tags        External
// @Produce     json
//
// @Param       X-Service-Key  header  string  true  "Shared service secret"
// @Param       id             path    string  true  "Domain alert ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DomainAlertDetail
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Alert not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts/{id} [get]
func (h *Handlers) GetDomainAlert(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert id must be a UUID")
		return
	}

	rec, zones, err := h.ingestSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrAlertNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	refs := make([]services.ZoneRef, 0, len(zones))
	for _, z := range zones {
		refs = append(refs, services.ZoneRef{ID: z.ID, Name: z.Name, RiskLevel: z.RiskLevel})
	}
	ok(c, http.StatusOK, DomainAlertDetail{Alert: *rec, Zones: refs})
}

// DomainAlertStats godoc
// @ID          domainAlertStats
// @Summary     Domain alert statistics
// @Description Returns counts grouped by status, priority, and category, plus the citizen-facing rollup of the same records.
// @Tags        External
// @Produce     json
//
// @Param       X-Service-Key  header  string  true  "Shared service secret"
//
// @Success     200  {object} repo.DomainAlertStats
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts/stats [get]
func (h *Handlers) DomainAlertStats(c *gin.Context) {
	var db *gorm.DB
	if svc, ok := h.ingestSvc.(*services.IngestionService); ok {
		db = svc.DB
	}
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats unavailable")
		return
	}

	stats, err := repo.CollectDomainAlertStats(c.Request.Context(), db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// UpdateDomainStatus godoc
// @ID          updateDomainStatus
// @Summary     Transition a domain alert
// @Description Applies an operator status transition and pushes it back to the origin service's webhook. A failed push is queued for the retry worker; the transition itself always sticks.
// @Tags        External
// @Accept      json
// @Produce     json
//
// @Param       X-Service-Key  header  string  true  "Shared service secret"
// @Param       id             path    string  true  "Domain alert ID (UUID)"  format(uuid)
// @Param       body           body    handlers.UpdateDomainStatusRequest  true  "Transition payload"
//
// @Success     200  {object} domain.DomainAlert
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     404  {object} handlers.ErrorResponse "Alert not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts/{id}/status [put]
func (h *Handlers) UpdateDomainStatus(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert id must be a UUID")
		return
	}

	var req UpdateDomainStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}

	rec, err := h.bridgeSvc.UpdateStatus(c.Request.Context(), id, req.Status, req.Comment, req.UpdatedBy)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "unknown status value")
		case errors.Is(err, services.ErrAlertNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, rec)
}

// AddExternalComment godoc
// @ID          addExternalComment
// @Summary     Attach a forwarded comment
// @Description Attaches a comment forwarded by the origin service. The path id is the alert id in the ORIGIN service's namespace, not the local copy's.
// @Tags        External
// @Accept      json
// @Produce     json
//
// @Param       X-Service-Key  header  string  true   "Shared service secret"
// @Param       X-Service-Id   header  string  false  "Sending service id"  example(citizen-service)
// @Param       id             path    string  true   "Origin alert ID (UUID)"  format(uuid)
// @Param       body           body    handlers.ExternalCommentRequest  true  "Comment payload"
//
// @Success     201  {object} domain.DomainComment
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "No copy for this origin reference"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /external/alerts/{id}/comments [post]
func (h *Handlers) AddExternalComment(c *gin.Context) {
	originAlertID := c.Param("id")
	if _, err := uuid.Parse(originAlertID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert id must be a UUID")
		return
	}

	var req ExternalCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	cm, err := h.ingestSvc.AddExternalComment(c.Request.Context(), originService(c), originAlertID, req.AuthorType, req.CitizenID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "text required")
		case errors.Is(err, services.ErrAlertNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no alert for this origin reference")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, cm)
}
