package events

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/response"
)

// Store is the persistence the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	List(ctx context.Context, f ListFilter, now time.Time) ([]models.Event, int, error)
	Update(ctx context.Context, id uuid.UUID, p Patch, descriptionHTML *string) (*models.Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateRequest is the body for POST /admin/api/events.
type CreateRequest struct {
	Title       string           `json:"title" binding:"required"`
	Slug        string           `json:"slug"`
	Description string           `json:"description"`
	Location    string           `json:"location"`
	StartsAt    time.Time        `json:"starts_at" binding:"required"`
	EndsAt      *time.Time       `json:"ends_at"`
	Capacity    int              `json:"capacity" binding:"gte=0"`
	Price       *decimal.Decimal `json:"price"`
	Published   bool             `json:"published"`
}

// UpdateRequest is the body for PATCH /admin/api/events/:id.
type UpdateRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Location    *string          `json:"location"`
	StartsAt    *time.Time       `json:"starts_at"`
	EndsAt      *time.Time       `json:"ends_at"`
	Capacity    *int             `json:"capacity"`
	Price       *decimal.Decimal `json:"price"`
	Published   *bool            `json:"published"`
}

// Page is a paginated list.
type Page struct {
	Items   []models.Event `json:"items"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, now: time.Now, logger: logger}
}

// RegisterPublicRoutes mounts the read-only endpoints.
func (h *Handler) RegisterPublicRoutes(g *gin.RouterGroup) {
	g.GET("/events", h.ListPublished)
	g.GET("/events/:id", h.GetPublished)
}

// RegisterAdminRoutes mounts the management endpoints.
func (h *Handler) RegisterAdminRoutes(g *gin.RouterGroup) {
	g.GET("/events", h.ListAll)
	g.POST("/events", h.Create)
	g.GET("/events/:id", h.Get)
	g.PATCH("/events/:id", h.Update)
	g.DELETE("/events/:id", h.Delete)
}

func filterFromQuery(c *gin.Context) ListFilter {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	f := ListFilter{When: c.Query("when"), Query: c.Query("q"), Page: page, PerPage: perPage}
	f.normalize()
	return f
}

func (h *Handler) list(c *gin.Context, f ListFilter) {
	if f.When != "" && f.When != WhenUpcoming && f.When != WhenPast {
		response.BadRequest(c, "when must be upcoming or past")
		return
	}
	items, total, err := h.store.List(c.Request.Context(), f, h.now())
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, Page{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage})
}

// ListPublished handles GET /events?when=&q=&page=&per_page=.
func (h *Handler) ListPublished(c *gin.Context) {
	f := filterFromQuery(c)
	f.PublishedOnly = true
	h.list(c, f)
}

// ListAll handles GET /admin/api/events.
func (h *Handler) ListAll(c *gin.Context) {
	h.list(c, filterFromQuery(c))
}

// lookup accepts either an id or a slug.
func (h *Handler) lookup(c *gin.Context) (*models.Event, error) {
	key := c.Param("id")
	if id, err := uuid.Parse(key); err == nil {
		return h.store.GetByID(c.Request.Context(), id)
	}
	return h.store.GetBySlug(c.Request.Context(), key)
}

func (h *Handler) get(c *gin.Context, publishedOnly bool) {
	e, err := h.lookup(c)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	if publishedOnly && !e.Published {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, e)
}

// GetPublished handles GET /events/:id (id or slug).
func (h *Handler) GetPublished(c *gin.Context) { h.get(c, true) }

// Get handles GET /admin/api/events/:id.
func (h *Handler) Get(c *gin.Context) { h.get(c, false) }

// Create handles POST /admin/api/events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	price := decimal.Zero
	if req.Price != nil {
		price = *req.Price
	}
	if price.IsNegative() {
		response.BadRequest(c, "price must not be negative")
		return
	}
	if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
		response.BadRequest(c, "ends_at must be after starts_at")
		return
	}
	html, err := RenderDescription(req.Description)
	if err != nil {
		response.BadRequest(c, "invalid description")
		return
	}
	slug := req.Slug
	if slug != "" {
		slug = Slugify(slug)
	}
	e := &models.Event{
		Title:           req.Title,
		Slug:            slug,
		Description:     req.Description,
		DescriptionHTML: html,
		Location:        req.Location,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Capacity:        req.Capacity,
		Price:           price.Round(2),
		Published:       req.Published,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("slug", e.Slug))
	response.Created(c, e)
}

// Update handles PATCH /admin/api/events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Price != nil && req.Price.IsNegative() {
		response.BadRequest(c, "price must not be negative")
		return
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		response.BadRequest(c, "capacity must not be negative")
		return
	}
	var html *string
	if req.Description != nil {
		rendered, err := RenderDescription(*req.Description)
		if err != nil {
			response.BadRequest(c, "invalid description")
			return
		}
		html = &rendered
	}
	e, err := h.store.Update(c.Request.Context(), id, Patch(req), html)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("update event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /admin/api/events/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, "event not found")
		case errors.Is(err, ErrHasRegistrations):
			response.Fail(c, http.StatusConflict, "has_registrations", "event has registrations on record")
		default:
			h.logger.Error("delete event failed", zap.Error(err), zap.String("event_id", id.String()))
			response.Internal(c, "failed to delete event")
		}
		return
	}
	response.NoContent(c)
}
