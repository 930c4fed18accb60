package registrations

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/middleware"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/internal/tickets"
	"github.com/evenia/backend/pkg/response"
)

// TicketResponse is returned by GET /registrations/:id/ticket.
type TicketResponse struct {
	Registration *models.Registration `json:"registration"`
	Payload      tickets.Payload      `json:"payload"`
	QRDataURL    string               `json:"qr_data_url"`
}

// Handler serves the registration endpoints of signed-in users.
type Handler struct {
	svc      *Service
	renderer *tickets.Renderer
	logger   *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, renderer *tickets.Renderer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = tickets.NewRenderer(0, 0)
	}
	return &Handler{svc: svc, renderer: renderer, logger: logger}
}

// RegisterRoutes mounts the handler on a JWT-protected group.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/events/:id/register", h.Register)
	g.GET("/me/registrations", h.Mine)
	g.GET("/registrations/:id/ticket", h.Ticket)
	g.GET("/registrations/:id/ticket.png", h.TicketPNG)
	g.POST("/registrations/:id/cancel", h.Cancel)
}

// Register handles POST /events/:id/register.
func (h *Handler) Register(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.Register(c.Request.Context(), userID, eventID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.Created(c, reg)
}

// Mine handles GET /me/registrations.
func (h *Handler) Mine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

func (h *Handler) ticket(c *gin.Context) (*models.Registration, tickets.Payload, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, tickets.Payload{}, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil, tickets.Payload{}, false
	}
	reg, err := h.svc.GetForUser(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return nil, tickets.Payload{}, false
	}
	p, err := h.svc.Ticket(c.Request.Context(), reg)
	if err != nil {
		writeError(c, h.logger, err)
		return nil, tickets.Payload{}, false
	}
	return reg, p, true
}

// Ticket handles GET /registrations/:id/ticket.
func (h *Handler) Ticket(c *gin.Context) {
	reg, p, ok := h.ticket(c)
	if !ok {
		return
	}
	url, err := h.renderer.DataURL(p)
	if err != nil {
		h.logger.Error("render ticket failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to render ticket")
		return
	}
	response.OK(c, TicketResponse{Registration: reg, Payload: p, QRDataURL: url})
}

// TicketPNG handles GET /registrations/:id/ticket.png.
func (h *Handler) TicketPNG(c *gin.Context) {
	reg, p, ok := h.ticket(c)
	if !ok {
		return
	}
	png, err := h.renderer.PNG(p)
	if err != nil {
		h.logger.Error("render ticket failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.Internal(c, "failed to render ticket")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Cancel handles POST /registrations/:id/cancel for the owner.
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reg, err := h.svc.CancelForUser(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	response.OK(c, reg)
}
