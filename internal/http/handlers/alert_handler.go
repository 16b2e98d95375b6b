// Citizen-facing alert HTTP handlers.
//
// This file exposes REST endpoints for alert resources:
//   - POST   /alerts                 (create and relay)
//   - GET    /alerts                 (list own, paginated)
//   - GET    /alerts/nearby          (proximity search)
//   - GET    /alerts/stats           (status rollup)
//   - GET    /alerts/{id}            (detail with history and comments)
//   - POST   /alerts/{id}/comments   (comment, forwarded best effort)
//   - POST   /webhooks/alert-status  (status push-back from services)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
	"github.com/iburossy/bolle-backend/internal/services"
	"github.com/iburossy/bolle-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AlertService defines the citizen alert lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AlertService interface {
	// Create validates, persists, and relays a new citizen report.
	Create(ctx context.Context, in services.CreateAlertInput) (*domain.Alert, error)
	// Get returns one alert owned by citizenID, with proofs, history, comments.
	Get(ctx context.Context, citizenID, alertID string) (*domain.Alert, error)
	// ListMine returns a page of the citizen's alerts and the total count.
	ListMine(ctx context.Context, citizenID string, page, pageSize int) ([]domain.Alert, int64, error)
	// AddComment appends a citizen comment and forwards it when possible.
	AddComment(ctx context.Context, citizenID, alertID, text string) (*domain.AlertComment, error)
	// ApplyStatusPush maps and applies a status pushed back by a service.
	ApplyStatusPush(ctx context.Context, alertID, domainStatus, comment, updatedBy string) (domain.AlertStatus, error)
	// Nearby returns non-anonymous alerts within radiusKm, closest first.
	Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]services.NearbyAlert, error)
}

// IngestionService defines the consumer-side intake operations consumed
// by HTTP handlers.
type IngestionService interface {
	// Ingest stores one pushed alert; retransmissions converge on the copy.
	Ingest(ctx context.Context, originServiceID string, p relay.AlertPayload) (*services.IngestResult, error)
	// Get returns one domain alert with its containing zones.
	Get(ctx context.Context, id string) (*domain.DomainAlert, []domain.Zone, error)
	// ListPage returns a filtered page of domain alerts and the total count.
	ListPage(ctx context.Context, status domain.DomainStatus, category string, page, pageSize int) ([]domain.DomainAlert, int64, error)
	// AddExternalComment attaches a forwarded comment by origin reference.
	AddExternalComment(ctx context.Context, originServiceID, originAlertID, authorType, citizenID, text string) (*domain.DomainComment, error)
}

// BridgeService defines domain-side status transitions, pushed back to
// the origin service.
type BridgeService interface {
	// UpdateStatus persists a transition and pushes it to the origin webhook.
	UpdateStatus(ctx context.Context, id, status, comment, updatedBy string) (*domain.DomainAlert, error)
}

// ZoneService defines risk zone operations consumed by HTTP handlers.
type ZoneService interface {
	// Create validates and persists a new zone.
	Create(ctx context.Context, in services.CreateZoneInput) (*domain.Zone, error)
	// Get returns one zone by id.
	Get(ctx context.Context, id string) (*domain.Zone, error)
	// ListPage returns a page of zones annotated with inspection flags.
	ListPage(ctx context.Context, risk domain.RiskLevel, page, pageSize int) ([]services.ZoneSummary, int64, error)
	// MarkInspected records an inspection timestamp.
	MarkInspected(ctx context.Context, id string, at time.Time) error
	// Hotspots scans alert coordinates for dense clusters.
	Hotspots(ctx context.Context) ([]services.HotspotView, error)
}

// DirectoryService defines service directory management consumed by HTTP
// handlers.
type DirectoryService interface {
	// Register stores a new directory entry.
	Register(ctx context.Context, in services.RegisterServiceInput) (*domain.Service, error)
	// List returns directory entries, optionally active only.
	List(ctx context.Context, activeOnly bool) ([]domain.Service, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for alerts, ingestion, zones, the status
// bridge, and the service directory. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	alertSvc  AlertService
	ingestSvc IngestionService
	bridgeSvc BridgeService
	zoneSvc   ZoneService
	dirSvc    DirectoryService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(alertSvc AlertService, ingestSvc IngestionService, bridgeSvc BridgeService, zoneSvc ZoneService, dirSvc DirectoryService) *Handlers {
	return &Handlers{
		alertSvc:  alertSvc,
		ingestSvc: ingestSvc,
		bridgeSvc: bridgeSvc,
		zoneSvc:   zoneSvc,
		dirSvc:    dirSvc,
	}
}

// citizenID extracts the authenticated citizen id from Gin context (set by
// upstream middleware). If absent, it falls back to "X-Citizen-ID" header
// (tests use it), and finally to "demo-citizen". It never touches
// c.Request if it's nil.
func citizenID(c *gin.Context) string {
	if v, ok := c.Get("citizenID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Citizen-ID")); h != "" {
			return h
		}
	}
	return "demo-citizen"
}

//
// DTOs
//

// LocationRequest is the GeoJSON point carried in create payloads.
// Coordinates are [longitude, latitude].
type LocationRequest struct {
	Type        string     `json:"type" example:"Point"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address" example:"Marché Tilène, Dakar"`
}

// ProofRequest is one proof descriptor supplied at alert creation.
type ProofRequest struct {
	// Type is the media kind: image (or photo), video, audio.
	Type string `json:"type" binding:"required" example:"image"`
	URL  string `json:"url"  binding:"required" example:"https://cdn.example.sn/p/1.jpg"`
}

// CreateAlertRequest is the JSON payload for creating an alert.
type CreateAlertRequest struct {
	Category    string          `json:"category"    binding:"required" example:"hygiene"`
	Description string          `json:"description" binding:"required" example:"Dépôt sauvage d'ordures"`
	Location    LocationRequest `json:"location"    binding:"required"`
	Proofs      []ProofRequest  `json:"proofs"      binding:"required,min=1"`
	IsAnonymous bool            `json:"is_anonymous"`
}

// CommentRequest is the JSON payload for commenting on an alert.
type CommentRequest struct {
	Text string `json:"text" binding:"required,min=1" example:"Toujours pas ramassé"`
}

// StatusWebhookRequest is the JSON payload pushed by a collaborating
// service when a relayed alert changes status on its side.
type StatusWebhookRequest struct {
	AlertID   string `json:"alertId"   binding:"required"`
	Status    string `json:"status"    binding:"required" example:"in_progress"`
	Comment   string `json:"comment"`
	UpdatedBy string `json:"updatedBy"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListAlertsResponse wraps a page of alerts and pagination information.
type ListAlertsResponse struct {
	Alerts     []domain.Alert `json:"alerts"`
	Pagination Pagination     `json:"pagination"`
}

// NearbyResponse wraps a proximity search result.
type NearbyResponse struct {
	Alerts   []services.NearbyAlert `json:"alerts"`
	RadiusKm float64                `json:"radius_km"`
}

// AlertStatsResponse is the citizen-side status rollup.
type AlertStatsResponse struct {
	Total    int64                        `json:"total"`
	ByStatus map[domain.AlertStatus]int64 `json:"by_status"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// newPagination assembles the pagination envelope for a page.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// proofKind maps wire proof type strings onto the stored vocabulary.
// "photo" is a legacy alias for image.
func proofKind(t string) domain.ProofKind {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "photo", "image":
		return domain.ProofImage
	case "video":
		return domain.ProofVideo
	case "audio":
		return domain.ProofAudio
	}
	return domain.ProofKind(t)
}

//
// Handlers
//

// CreateAlert godoc
// @ID          createAlert
// @Summary     Create a new alert
// @Description Validates and stores a citizen report, then relays it to the service owning the category. The alert is kept even when the relay fails; a retry worker delivers it later.
// @Tags        Alerts
// @Accept      json
// @Produce     json
//
// @Param       X-Citizen-ID  header  string  false "Citizen ID (demo header)"  example(citizen-1)
// @Param       body          body    handlers.CreateAlertRequest  true  "Create alert payload"
//
// @Success     201  {object}  domain.Alert
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     503  {object}  handlers.ErrorResponse  "No service owns the category"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /alerts [post]
func (h *Handlers) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	in := services.CreateAlertInput{
		CitizenID:   citizenID(c),
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Lon:         req.Location.Coordinates[0],
		Lat:         req.Location.Coordinates[1],
		Address:     strings.TrimSpace(req.Location.Address),
		IsAnonymous: req.IsAnonymous,
	}
	for _, p := range req.Proofs {
		in.Proofs = append(in.Proofs, services.ProofInput{Kind: proofKind(p.Type), URL: strings.TrimSpace(p.URL)})
	}

	a, err := h.alertSvc.Create(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "description, category, coordinates and at least one proof are required")
		case errors.Is(err, services.ErrServiceUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "no active service handles this category")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, a)
}

// ListAlerts godoc
// @ID          listAlerts
// @Summary     List own alerts (paginated)
// @Description Returns a page of the citizen's alerts, newest first.
// @Tags        Alerts
// @Produce     json
//
// @Param       X-Citizen-ID  header  string  false "Citizen ID (demo header)"  example(citizen-1)
// @Param       page          query   int     false "Page number"      minimum(1) default(1)
// @Param       page_size     query   int     false "Items per page"   minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListAlertsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /alerts [get]
func (h *Handlers) ListAlerts(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.alertSvc.ListMine(c.Request.Context(), citizenID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListAlertsResponse{
		Alerts:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetAlert godoc
// @ID          getAlert
// @Summary     Get one alert
// @Description Returns an alert owned by the citizen, with proofs, status history, and comments.
// @Tags        Alerts
// @Produce     json
//
// @Param       X-Citizen-ID  header  string  false "Citizen ID (demo header)"  example(citizen-1)
// @Param       id            path    string  true  "Alert ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Alert
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Alert not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /alerts/{id} [get]
func (h *Handlers) GetAlert(c *gin.Context) {
	alertID := c.Param("id")
	if _, err := uuid.Parse(alertID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert id must be a UUID")
		return
	}

	a, err := h.alertSvc.Get(c.Request.Context(), citizenID(c), alertID)
	if err != nil {
		if errors.Is(err, services.ErrAlertNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, a)
}

// AddAlertComment godoc
// @ID          addAlertComment
// @Summary     Comment on an alert
// @Description Appends a citizen comment; when the alert has been relayed, the comment is forwarded to the owning service best effort.
// @Tags        Alerts
// @Accept      json
// @Produce     json
//
// @Param       X-Citizen-ID  header  string  false "Citizen ID (demo header)"  example(citizen-1)
// @Param       id            path    string  true  "Alert ID (UUID)"  format(uuid)
// @Param       body          body    handlers.CommentRequest  true  "Comment payload"
//
// @Success     201  {object} domain.AlertComment
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Alert not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /alerts/{id}/comments [post]
func (h *Handlers) AddAlertComment(c *gin.Context) {
	alertID := c.Param("id")
	if _, err := uuid.Parse(alertID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alert id must be a UUID")
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	cm, err := h.alertSvc.AddComment(c.Request.Context(), citizenID(c), alertID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "text required")
		case errors.Is(err, services.ErrAlertNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alert not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, cm)
}

// NearbyAlerts godoc
// @ID          nearbyAlerts
// @Summary     Search alerts near a point
// @Description Returns non-anonymous alerts within radius_km of (lat,lon), closest first, capped at 50.
// @Tags        Alerts
// @Produce     json
//
// @Param       lat        query  number  true   "Latitude"   minimum(-90)  maximum(90)
// @Param       lon        query  number  true   "Longitude"  minimum(-180) maximum(180)
// @Param       radius_km  query  number  false  "Search radius in km"  default(5)
//
// @Success     200  {object} handlers.NearbyResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad coordinates"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /alerts/nearby [get]
func (h *Handlers) NearbyAlerts(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lon query parameters are required")
		return
	}
	radius := 5.0
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "radius_km must be a positive number")
			return
		}
		radius = r
	}

	items, err := h.alertSvc.Nearby(c.Request.Context(), geo.Point{Lon: lon, Lat: lat}, radius)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "coordinates out of range")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, NearbyResponse{Alerts: items, RadiusKm: radius})
}

// AlertStats godoc
// @ID          alertStats
// @Summary     Alert status rollup
// @Description Returns the count of alerts grouped by citizen-facing status.
// @Tags        Alerts
// @Produce     json
//
// @Success     200  {object} handlers.AlertStatsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /alerts/stats [get]
func (h *Handlers) AlertStats(c *gin.Context) {
	var db *gorm.DB
	if svc, ok := h.alertSvc.(*services.AlertService); ok {
		db = svc.DB
	}
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats unavailable")
		return
	}

	counts, err := repo.AlertStatusCounts(c.Request.Context(), db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	ok(c, http.StatusOK, AlertStatsResponse{Total: total, ByStatus: counts})
}

// AlertStatusWebhook godoc
// @ID          alertStatusWebhook
// @Summary     Receive a status push-back
// @Description Applies a status change pushed by the service owning a relayed alert. The domain vocabulary is mapped onto the citizen-facing one.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Service-Key  header  string  true  "Shared service secret"
// @Param       body           body    handlers.StatusWebhookRequest  true  "Status push payload"
//
// @Success     200  {object} map[string]string
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     404  {object} handlers.ErrorResponse "Alert not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /webhooks/alert-status [post]
func (h *Handlers) AlertStatusWebhook(c *gin.Context) {
	var req StatusWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "alertId and status are required")
		return
	}

	mapped, err := h.alertSvc.ApplyStatusPush(c.Request.Context(), req.AlertID, req.Status, req.Comment, req.UpdatedBy)
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
	ok(c, http.StatusOK, gin.H{"alertId": req.AlertID, "status": string(mapped)})
}
