package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/response"
	"github.com/evenia/backend/pkg/utils"
)

// Users is the user persistence the handler needs; *Repository implements it.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, search string, page, perPage int) ([]models.UserPublic, int, error)
	Create(ctx context.Context, email, passwordHash, fullName, phone string, role models.Role) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// UserPage is a paginated user list.
type UserPage struct {
	Items   []models.UserPublic `json:"items"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   Users
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo Users, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// RegisterRoutes mounts register and login.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/auth/register", h.Register)
	g.POST("/auth/login", h.Login)
}

// RegisterAdminRoutes mounts user management.
func (h *Handler) RegisterAdminRoutes(g *gin.RouterGroup) {
	g.GET("/users", h.List)
	g.GET("/users/:id", h.Get)
	g.DELETE("/users/:id", h.Delete)
}

// Register handles POST /auth/register. Self-registered accounts are always plain users.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, req.FullName, req.Phone, models.RoleUser)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, "email already registered")
			return
		}
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			h.logger.Error("load user failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// List handles GET /users?q=&page=&per_page=.
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	list, total, err := h.repo.List(c.Request.Context(), c.Query("q"), page, perPage)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, UserPage{Items: list, Total: total, Page: page, PerPage: perPage})
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, user.ToPublic())
}

// Delete handles DELETE /users/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			response.NotFound(c, "user not found")
			return
		case errors.Is(err, ErrUserHasRegistrations):
			response.Fail(c, http.StatusConflict, "has_registrations", "user has registrations on record")
			return
		}
		h.logger.Error("delete user failed", zap.Error(err), zap.String("user_id", id.String()))
		response.Internal(c, "failed to delete user")
		return
	}
	response.NoContent(c)
}
