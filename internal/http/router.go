// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, service-key authentication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/config"
	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/http/handlers"
	"github.com/iburossy/bolle-backend/internal/http/middleware"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
	"github.com/iburossy/bolle-backend/internal/services"
)

// alertRepoShim adapts the repository free functions to the
// services.AlertRepo interface expected by the AlertService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type alertRepoShim struct{}

// CreateAlert proxies repo.CreateAlert.
func (alertRepoShim) CreateAlert(ctx context.Context, db *gorm.DB, a *domain.Alert) error {
	return repo.CreateAlert(ctx, db, a)
}

// GetAlert proxies repo.GetAlert.
func (alertRepoShim) GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.Alert, error) {
	return repo.GetAlert(ctx, db, id)
}

// CountAlertsByCitizen proxies repo.CountAlertsByCitizen.
func (alertRepoShim) CountAlertsByCitizen(ctx context.Context, db *gorm.DB, citizenID string) (int64, error) {
	return repo.CountAlertsByCitizen(ctx, db, citizenID)
}

// ListAlertsByCitizenPage proxies repo.ListAlertsByCitizenPage.
func (alertRepoShim) ListAlertsByCitizenPage(ctx context.Context, db *gorm.DB, citizenID string, offset, limit int) ([]domain.Alert, error) {
	return repo.ListAlertsByCitizenPage(ctx, db, citizenID, offset, limit)
}

// ListAlertsInBox proxies repo.ListAlertsInBox.
func (alertRepoShim) ListAlertsInBox(ctx context.Context, db *gorm.DB, minLat, maxLat, minLon, maxLon float64, limit int) ([]domain.Alert, error) {
	return repo.ListAlertsInBox(ctx, db, minLat, maxLat, minLon, maxLon, limit)
}

// AppendAlertComment proxies repo.AppendAlertComment.
func (alertRepoShim) AppendAlertComment(ctx context.Context, db *gorm.DB, alertID, author, text string, fromService bool) (*domain.AlertComment, error) {
	return repo.AppendAlertComment(ctx, db, alertID, author, text, fromService)
}

// AppendStatusChange proxies repo.AppendStatusChange.
func (alertRepoShim) AppendStatusChange(ctx context.Context, db *gorm.DB, alertID string, status domain.AlertStatus, comment, actor string) error {
	return repo.AppendStatusChange(ctx, db, alertID, status, comment, actor)
}

// SetRelayReference proxies repo.SetRelayReference.
func (alertRepoShim) SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error {
	return repo.SetRelayReference(ctx, db, alertID, reference)
}

// serviceRepoShim adapts directory lookups for both the relay path
// (services.Directory) and directory administration (services.DirectoryRepo).
type serviceRepoShim struct{}

// CreateService proxies repo.CreateService.
func (serviceRepoShim) CreateService(ctx context.Context, db *gorm.DB, s *domain.Service) error {
	return repo.CreateService(ctx, db, s)
}

// GetService proxies repo.GetService.
func (serviceRepoShim) GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error) {
	return repo.GetService(ctx, db, id)
}

// FindServiceByCategory proxies repo.FindServiceByCategory.
func (serviceRepoShim) FindServiceByCategory(ctx context.Context, db *gorm.DB, category string) (*domain.Service, error) {
	return repo.FindServiceByCategory(ctx, db, category)
}

// ListServices proxies repo.ListServices.
func (serviceRepoShim) ListServices(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Service, error) {
	return repo.ListServices(ctx, db, activeOnly)
}

// domainAlertRepoShim adapts the repository free functions to the
// services.DomainAlertRepo interface shared by ingestion and the bridge.
type domainAlertRepoShim struct{}

// CreateDomainAlert proxies repo.CreateDomainAlert.
func (domainAlertRepoShim) CreateDomainAlert(ctx context.Context, db *gorm.DB, rec *domain.DomainAlert) error {
	return repo.CreateDomainAlert(ctx, db, rec)
}

// FindByOriginRef proxies repo.FindByOriginRef.
func (domainAlertRepoShim) FindByOriginRef(ctx context.Context, db *gorm.DB, originServiceID, originAlertID string) (*domain.DomainAlert, error) {
	return repo.FindByOriginRef(ctx, db, originServiceID, originAlertID)
}

// GetDomainAlert proxies repo.GetDomainAlert.
func (domainAlertRepoShim) GetDomainAlert(ctx context.Context, db *gorm.DB, id string) (*domain.DomainAlert, error) {
	return repo.GetDomainAlert(ctx, db, id)
}

// CountDomainAlerts proxies repo.CountDomainAlerts.
func (domainAlertRepoShim) CountDomainAlerts(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string) (int64, error) {
	return repo.CountDomainAlerts(ctx, db, status, category)
}

// ListDomainAlertsPage proxies repo.ListDomainAlertsPage.
func (domainAlertRepoShim) ListDomainAlertsPage(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string, offset, limit int) ([]domain.DomainAlert, error) {
	return repo.ListDomainAlertsPage(ctx, db, status, category, offset, limit)
}

// UpdateDomainStatus proxies repo.UpdateDomainStatus.
func (domainAlertRepoShim) UpdateDomainStatus(ctx context.Context, db *gorm.DB, id string, status domain.DomainStatus) error {
	return repo.UpdateDomainStatus(ctx, db, id, status)
}

// AppendDomainComment proxies repo.AppendDomainComment.
func (domainAlertRepoShim) AppendDomainComment(ctx context.Context, db *gorm.DB, domainAlertID, author, text string) (*domain.DomainComment, error) {
	return repo.AppendDomainComment(ctx, db, domainAlertID, author, text)
}

// MarkZoneUpdated proxies repo.MarkZoneUpdated.
func (domainAlertRepoShim) MarkZoneUpdated(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.MarkZoneUpdated(ctx, db, id)
}

// zoneRepoShim adapts the repository free functions to the
// services.ZoneRepo interface expected by the ZoneService.
type zoneRepoShim struct{}

// CreateZone proxies repo.CreateZone.
func (zoneRepoShim) CreateZone(ctx context.Context, db *gorm.DB, z *domain.Zone) error {
	return repo.CreateZone(ctx, db, z)
}

// GetZone proxies repo.GetZone.
func (zoneRepoShim) GetZone(ctx context.Context, db *gorm.DB, id string) (*domain.Zone, error) {
	return repo.GetZone(ctx, db, id)
}

// CountZones proxies repo.CountZones.
func (zoneRepoShim) CountZones(ctx context.Context, db *gorm.DB, risk domain.RiskLevel) (int64, error) {
	return repo.CountZones(ctx, db, risk)
}

// ListZonesPage proxies repo.ListZonesPage.
func (zoneRepoShim) ListZonesPage(ctx context.Context, db *gorm.DB, risk domain.RiskLevel, offset, limit int) ([]domain.Zone, error) {
	return repo.ListZonesPage(ctx, db, risk, offset, limit)
}

// ListAllZones proxies repo.ListAllZones.
func (zoneRepoShim) ListAllZones(ctx context.Context, db *gorm.DB) ([]domain.Zone, error) {
	return repo.ListAllZones(ctx, db)
}

// IncrementZoneAlert proxies repo.IncrementZoneAlert.
func (zoneRepoShim) IncrementZoneAlert(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.IncrementZoneAlert(ctx, db, id, at)
}

// TouchInspection proxies repo.TouchInspection.
func (zoneRepoShim) TouchInspection(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.TouchInspection(ctx, db, id, at)
}

// coordShim adapts the coordinate snapshot query for hotspot scans.
type coordShim struct{}

// ListDomainAlertCoordinates proxies repo.ListDomainAlertCoordinates.
func (coordShim) ListDomainAlertCoordinates(ctx context.Context, db *gorm.DB) ([]geo.Point, error) {
	return repo.ListDomainAlertCoordinates(ctx, db)
}

// outboxShim adapts the outbox enqueue function for failed pushes.
type outboxShim struct{}

// EnqueueOutbox proxies repo.EnqueueOutbox.
func (outboxShim) EnqueueOutbox(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) error {
	return repo.EnqueueOutbox(ctx, db, msg)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), service-key
// authentication and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*
// plus the inter-service surface at the root.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Service-key guard on /external and /webhooks (before rate limiter so
//     authenticated machine traffic bypasses citizen buckets)
//  8. Rate limiter (per citizen/IP, bypass for inter-service calls)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			middleware.ServiceKeyHeader, // the shared relay secret never reaches logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// Response compression. /metrics negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Shared-secret authentication for the inter-service surface. The
	// guard runs globally so the bypass flag it sets is visible to the rate
	// limiter below; it only enforces on relay paths.
	serviceAuth := middleware.ServiceKeyAuth(cfg.Relay.ServiceKey)
	r.Use(func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/external") || strings.HasPrefix(p, "/webhooks") {
			serviceAuth(c)
			return
		}
		c.Next()
	})

	// 8) Token-bucket rate limiter per citizen/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCitizenOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Citizen-ID", middleware.ServiceKeyHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Citizen-ID", middleware.ServiceKeyHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/relay
	relayClient := relay.New(cfg.Relay.ServiceKey, cfg.Relay.ServiceID, cfg.Relay.Timeout, log.Logger)

	alertSvc := &services.AlertService{
		DB:           db,
		Repo:         alertRepoShim{},
		Directory:    serviceRepoShim{},
		Relay:        relayClient,
		Outbox:       outboxShim{},
		NearbyMaxKm:  cfg.Geo.NearbyMaxKm,
		RetryBackoff: cfg.Relay.BaseBackoff,
		Log:          log.Logger,
	}
	zoneSvc := &services.ZoneService{
		DB:               db,
		Repo:             zoneRepoShim{},
		Coords:           coordShim{},
		HotspotRadiusKm:  cfg.Geo.HotspotRadiusKm,
		HotspotMinPoints: cfg.Geo.HotspotMinPoints,
		Log:              log.Logger,
	}
	ingestSvc := &services.IngestionService{
		DB:    db,
		Repo:  domainAlertRepoShim{},
		Zones: zoneSvc,
		Log:   log.Logger,
	}
	bridgeSvc := &services.BridgeService{
		DB:           db,
		Repo:         domainAlertRepoShim{},
		Directory:    serviceRepoShim{},
		Relay:        relayClient,
		Outbox:       outboxShim{},
		RetryBackoff: cfg.Relay.BaseBackoff,
		Log:          log.Logger,
	}
	dirSvc := &services.DirectoryService{
		DB:   db,
		Repo: serviceRepoShim{},
		Log:  log.Logger,
	}
	h := handlers.New(alertSvc, ingestSvc, bridgeSvc, zoneSvc, dirSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Citizen alerts
		api.POST("/alerts", h.CreateAlert)
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/nearby", h.NearbyAlerts)
		api.GET("/alerts/stats", h.AlertStats)
		api.GET("/alerts/:id", h.GetAlert)
		api.POST("/alerts/:id/comments", h.AddAlertComment)

		// Risk zones
		api.POST("/zones", h.CreateZone)
		api.GET("/zones", h.ListZones)
		api.GET("/zones/hotspots", h.Hotspots)
		api.GET("/zones/:id", h.GetZone)
		api.POST("/zones/:id/inspection", h.MarkZoneInspected)

		// Service directory
		api.POST("/services", h.RegisterService)
		api.GET("/services", h.ListRegisteredServices)
	}

	// Inter-service surface. Mounted at the root so a directory base URL
	// addresses it directly; the relay client appends /external/... and
	// /webhooks/... verbatim.
	ext := r.Group("/external")
	{
		ext.POST("/alerts", h.IngestAlert)
		ext.GET("/alerts", h.ListDomainAlerts)
		ext.GET("/alerts/stats", h.DomainAlertStats)
		ext.GET("/alerts/:id", h.GetDomainAlert)
		ext.PUT("/alerts/:id/status", h.UpdateDomainStatus)
		ext.POST("/alerts/:id/comments", h.AddExternalComment)
	}
	r.POST("/webhooks/alert-status", h.AlertStatusWebhook)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
