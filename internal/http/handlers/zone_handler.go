// Risk zone HTTP handlers.
//
// This file exposes REST endpoints for zone resources:
//   - POST /zones                  (create)
//   - GET  /zones                  (list, risk-ordered, paginated)
//   - GET  /zones/hotspots         (density scan over alert coordinates)
//   - GET  /zones/{id}             (detail)
//   - POST /zones/{id}/inspection  (record an inspection visit)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/services"
)

//
// DTOs
//

// CreateZoneRequest is the JSON payload for creating a risk zone. The
// area is either a polygon ring of [lon,lat] vertices (an open ring is
// closed automatically) or a circle given as center plus radius_km.
type CreateZoneRequest struct {
	Name            string       `json:"name" binding:"required" example:"Médina Nord"`
	Description     string       `json:"description"`
	RiskLevel       string       `json:"risk_level" example:"high"`
	Boundary        [][2]float64 `json:"boundary" binding:"omitempty,min=3"`
	Center          *[2]float64  `json:"center"`
	RadiusKm        float64      `json:"radius_km"`
	ResponsibleTeam string       `json:"responsible_team"`
}

// ListZonesResponse wraps a page of zones and pagination information.
type ListZonesResponse struct {
	Zones      []services.ZoneSummary `json:"zones"`
	Pagination Pagination             `json:"pagination"`
}

// HotspotsResponse wraps a hotspot scan result.
type HotspotsResponse struct {
	Hotspots []services.HotspotView `json:"hotspots"`
}

//
// Handlers
//

// CreateZone godoc
// @ID          createZone
// @Summary     Create a risk zone
// @Description Stores a named polygonal risk area. The boundary needs at least three distinct vertices; the risk level defaults to medium.
// @Tags        Zones
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateZoneRequest  true  "Zone definition"
//
// @Success     201  {object} domain.Zone
// @Failure     400  {object} handlers.ErrorResponse "Invalid name, risk level, or boundary"
// @Failure     409  {object} handlers.ErrorResponse "Zone name already taken"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /zones [post]
func (h *Handlers) CreateZone(c *gin.Context) {
	var req CreateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and a boundary of at least 3 vertices (or center plus radius_km) are required")
		return
	}

	var ring []geo.Point
	switch {
	case len(req.Boundary) > 0:
		ring = make([]geo.Point, 0, len(req.Boundary))
		for _, v := range req.Boundary {
			ring = append(ring, geo.Point{Lon: v[0], Lat: v[1]})
		}
	case req.Center != nil && req.RadiusKm > 0:
		ring = geo.Circle(geo.Point{Lon: req.Center[0], Lat: req.Center[1]}, req.RadiusKm, 32)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "either boundary or center plus radius_km is required")
		return
	}

	z, err := h.zoneSvc.Create(c.Request.Context(), services.CreateZoneInput{
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		RiskLevel:       domain.RiskLevel(strings.TrimSpace(req.RiskLevel)),
		Boundary:        ring,
		ResponsibleTeam: strings.TrimSpace(req.ResponsibleTeam),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "name required and risk level must be low, medium, high, or critical")
		case errors.Is(err, services.ErrInvalidBoundary):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "boundary needs at least 3 distinct vertices")
		case errors.Is(err, services.ErrZoneExists):
			fail(c, http.StatusConflict, ErrCodeConflict, "zone name already taken")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, z)
}

// ListZones godoc
// @ID          listZones
// @Summary     List risk zones (paginated)
// @Description Returns a page of zones ordered by risk level then alert count, each annotated with whether an inspection is due.
// @Tags        Zones
// @Produce     json
//
// @Param       risk       query  string  false  "Filter by risk level"  Enums(low, medium, high, critical)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListZonesResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown risk filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /zones [get]
func (h *Handlers) ListZones(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.zoneSvc.ListPage(
		c.Request.Context(),
		domain.RiskLevel(strings.TrimSpace(c.Query("risk"))),
		page, pageSize,
	)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown risk filter")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListZonesResponse{
		Zones:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetZone godoc
// @ID          getZone
// @Summary     Get one risk zone
// @Tags        Zones
// @Produce     json
//
// @Param       id  path  string  true  "Zone ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Zone
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Zone not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /zones/{id} [get]
func (h *Handlers) GetZone(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "zone id must be a UUID")
		return
	}

	z, err := h.zoneSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrZoneNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "zone not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, z)
}

// MarkZoneInspected godoc
// @ID          markZoneInspected
// @Summary     Record a zone inspection
// @Description Stamps the zone's last inspection time with the current time.
// @Tags        Zones
// @Produce     json
//
// @Param       id  path  string  true  "Zone ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Zone not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /zones/{id}/inspection [post]
func (h *Handlers) MarkZoneInspected(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "zone id must be a UUID")
		return
	}

	if err := h.zoneSvc.MarkInspected(c.Request.Context(), id, time.Now().UTC()); err != nil {
		if errors.Is(err, services.ErrZoneNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "zone not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// Hotspots godoc
// @ID          hotspots
// @Summary     Detect alert hotspots
// @Description Scans the current alert coordinates for dense clusters and annotates each hotspot with the zones containing its center.
// @Tags        Zones
// @Produce     json
//
// @Success     200  {object} handlers.HotspotsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /zones/hotspots [get]
func (h *Handlers) Hotspots(c *gin.Context) {
	spots, err := h.zoneSvc.Hotspots(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, HotspotsResponse{Hotspots: spots})
}
