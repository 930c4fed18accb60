package registrations

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/response"
)

// AdminHandler serves the check-in and back-office endpoints.
type AdminHandler struct {
	svc    *Service
	logger *zap.Logger
}

// NewAdminHandler creates the admin registrations handler.
func NewAdminHandler(svc *Service, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the handler on the admin group.
func (h *AdminHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/checkin/:code", h.Verify)
	g.POST("/checkin/:code", h.Attend)
	g.GET("/registrations/:id", h.Get)
	g.POST("/registrations/:id/confirm", h.Confirm)
	g.POST("/registrations/:id/cancel", h.Cancel)
	g.GET("/events/:id/registrations", h.ListForEvent)
}

// Verify handles GET /checkin/:code.
func (h *AdminHandler) Verify(c *gin.Context) {
	reg, err := h.svc.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}

// Attend handles POST /checkin/:code.
func (h *AdminHandler) Attend(c *gin.Context) {
	reg, err := h.svc.MarkAttended(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}

// Get handles GET /registrations/:id.
func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}

// Confirm handles POST /registrations/:id/confirm.
func (h *AdminHandler) Confirm(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Confirm(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}

// Cancel handles POST /registrations/:id/cancel.
func (h *AdminHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}

// ListForEvent handles GET /events/:id/registrations?status=.
func (h *AdminHandler) ListForEvent(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	status := models.RegistrationStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	list, err := h.svc.ListForEvent(c.Request.Context(), eventID, status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}
