// Service directory HTTP handlers.
//
// The directory is the lookup table the relay consults to find which
// backend owns an alert category. Entries are administrative data;
// creation is expected to happen at deployment time.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/iburossy/bolle-backend/internal/services"
)

// RegisterServiceRequest is the JSON payload for a directory entry. ID is
// optional; producers that push alerts here register under the fixed id
// they send in X-Service-Id, everything else gets a generated one.
type RegisterServiceRequest struct {
	ID       string `json:"id"       example:"citizen-service"`
	Name     string `json:"name"     binding:"required" example:"Service d'hygiène"`
	Category string `json:"category" binding:"required" example:"hygiene"`
	BaseURL  string `json:"base_url" binding:"required" example:"http://hygiene.internal:8081"`
	Active   *bool  `json:"active"`
}

// RegisterService godoc
// @ID          registerService
// @Summary     Register a collaborating service
// @Description Adds a directory entry mapping an alert category to the backend that owns it.
// @Tags        Services
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterServiceRequest  true  "Directory entry"
//
// @Success     201  {object} domain.Service
// @Failure     400  {object} handlers.ErrorResponse "Missing name, category, or base URL"
// @Failure     409  {object} handlers.ErrorResponse "Service id already registered"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /services [post]
func (h *Handlers) RegisterService(c *gin.Context) {
	var req RegisterServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, category, and base_url are required")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	entry, err := h.dirSvc.Register(c.Request.Context(), services.RegisterServiceInput{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		BaseURL:  req.BaseURL,
		Active:   active,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "name, category, and base_url are required")
		case errors.Is(err, services.ErrServiceExists):
			fail(c, http.StatusConflict, ErrCodeConflict, "a service with this id is already registered")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, entry)
}

// ListRegisteredServices godoc
// @ID          listRegisteredServices
// @Summary     List directory entries
// @Tags        Services
// @Produce     json
//
// @Param       active  query  bool  false  "Only active services"  default(false)
//
// @Success     200  {array}  domain.Service
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /services [get]
func (h *Handlers) ListRegisteredServices(c *gin.Context) {
	activeOnly := strings.EqualFold(c.Query("active"), "true")

	items, err := h.dirSvc.List(c.Request.Context(), activeOnly)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
