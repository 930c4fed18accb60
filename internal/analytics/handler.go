package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/events"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/response"
)

// StatsSource aggregates registrations; *registrations.Service implements it.
type StatsSource interface {
	Stats(ctx context.Context, eventID uuid.UUID) (*models.RegistrationStats, error)
}

// EventLookup loads the event being reported on.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Handler handles GET /events/:id/stats.
type Handler struct {
	stats  StatsSource
	events EventLookup
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(stats StatsSource, eventLookup EventLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{stats: stats, events: eventLookup, now: time.Now, logger: logger}
}

// RegisterRoutes mounts the handler on the admin group.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/events/:id/stats", h.GetByEvent)
}

// SummaryResponse is the JSON shape of an event report.
type SummaryResponse struct {
	EventID        uuid.UUID       `json:"event_id"`
	Total          int             `json:"total_registrations"`
	Pending        int             `json:"pending"`
	Confirmed      int             `json:"confirmed"`
	Attended       int             `json:"attended"`
	Canceled       int             `json:"canceled"`
	NoShow         int             `json:"no_show"`
	AttendanceRate *float64        `json:"attendance_rate,omitempty"`
	Revenue        decimal.Decimal `json:"revenue"`
	Capacity       int             `json:"capacity"`
	SeatsLeft      *int            `json:"seats_left,omitempty"`
}

// Summarize derives the report for e at now.
// No-shows are only counted once the event is over.
func Summarize(e *models.Event, s *models.RegistrationStats, now time.Time) SummaryResponse {
	out := SummaryResponse{
		EventID:   e.ID,
		Total:     s.Total,
		Pending:   s.Pending,
		Confirmed: s.Confirmed,
		Attended:  s.Attended,
		Canceled:  s.Canceled,
		Revenue:   s.Revenue,
		Capacity:  e.Capacity,
	}
	active := s.Total - s.Canceled
	if e.IsPast(now) {
		out.NoShow = s.Pending + s.Confirmed
	}
	if !e.IsUpcoming(now) && active > 0 {
		rate := float64(s.Attended) / float64(active)
		out.AttendanceRate = &rate
	}
	if e.Capacity > 0 {
		left := e.Capacity - active
		if left < 0 {
			left = 0
		}
		out.SeatsLeft = &left
	}
	return out
}

// GetByEvent handles GET /events/:id/stats.
func (h *Handler) GetByEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	e, err := h.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("load event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to load event")
		return
	}
	s, err := h.stats.Stats(ctx, id)
	if err != nil {
		h.logger.Error("load stats failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to load registration counts")
		return
	}
	response.OK(c, Summarize(e, s, h.now()))
}
