package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evenia/backend/internal/auth"
	"github.com/evenia/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"lowercase scheme", "s3cret", "bearer s3cret", http.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"basic scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"unconfigured", "", "Bearer ", http.StatusUnauthorized},
		{"unconfigured with token", "", "Bearer anything", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", AdminToken(tt.configured), func(c *gin.Context) { c.Status(http.StatusOK) })
			w := serve(r, http.MethodGet, "/x", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestJWTSetsUser(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "a@b.fr", "user")
	require.NoError(t, err)

	r := gin.New()
	var got uuid.UUID
	r.GET("/me", JWT(svc), func(c *gin.Context) {
		got, _ = UserID(c)
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/me", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, got)

	w = serve(r, http.MethodGet, "/me", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	userToken, _ := svc.Generate(uuid.New(), "u@b.fr", "user")
	adminToken, _ := svc.Generate(uuid.New(), "a@b.fr", "admin")

	r := gin.New()
	r.GET("/admin", JWT(svc), RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", "Bearer "+userToken).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", "Bearer "+adminToken).Code)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://evenia.fr"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evenia.fr")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://evenia.fr", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnknownOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://evenia.fr, https://admin.evenia.fr/"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://admin.evenia.fr")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://admin.evenia.fr", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerRequestID(t *testing.T) {
	r := gin.New()
	r.Use(Logger(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/x", "")
	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "scan-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "scan-42", w.Header().Get(HeaderRequestID))
}

func TestRequireRoleWithoutJWT(t *testing.T) {
	r := gin.New()
	r.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "").Code)
}
