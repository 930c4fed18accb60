package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/internal/registrations"
	"github.com/evenia/backend/pkg/queue"
	"github.com/evenia/backend/pkg/response"
)

// Lister reads email logs; *Repository implements it.
type Lister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error)
}

// RegistrationLookup resolves the registration an email is about.
type RegistrationLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Enqueuer accepts email jobs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   Lister
	regs   RegistrationLookup
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates an email logs handler. A nil queue disables resending.
func NewHandler(repo Lister, regs RegistrationLookup, q Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, regs: regs, queue: q, logger: logger}
}

// RegisterRoutes mounts the handler on the admin group.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/events/:id/emails", h.ListByEvent)
	g.POST("/events/:id/emails/resend", h.Resend)
}

// ListByEvent handles GET /events/:id/emails.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}

// ResendRequest is the body for POST /events/:id/emails/resend.
type ResendRequest struct {
	RegistrationID string `json:"registration_id" binding:"required"`
	EmailType      string `json:"email_type"`
}

// Resend handles POST /events/:id/emails/resend by queueing a new email job.
func (h *Handler) Resend(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "registration_id required")
		return
	}
	emailType := body.EmailType
	if emailType == "" {
		emailType = models.EmailTypeRegistrationConfirmation
	}
	if !models.ValidEmailType(emailType) {
		response.BadRequest(c, "unknown email_type")
		return
	}
	regID, err := uuid.Parse(body.RegistrationID)
	if err != nil {
		response.BadRequest(c, "invalid registration_id")
		return
	}
	if h.queue == nil {
		response.ServiceUnavailable(c, "email worker is not configured")
		return
	}

	reg, err := h.regs.Get(c.Request.Context(), regID)
	if err != nil || reg.EventID != eventID {
		if err == nil || errors.Is(err, registrations.ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		response.Internal(c, "failed to load registration")
		return
	}
	if emailType != models.EmailTypeCancellation && !reg.IsActive() {
		response.Conflict(c, "registration is no longer active")
		return
	}

	err = h.queue.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:      emailType,
		EventID:        eventID,
		RegistrationID: regID,
	})
	if err != nil {
		h.logger.Error("enqueue resend failed", zap.Error(err), zap.String("registration_id", regID.String()))
		response.Internal(c, "failed to queue email")
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
