package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail sends an error envelope carrying a stable machine-readable code.
func Fail(c *gin.Context, status int, code, err string) {
	c.JSON(status, Body{Success: false, Error: err, Code: code})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	Fail(c, http.StatusBadRequest, "bad_request", err)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	Fail(c, http.StatusUnauthorized, "unauthorized", err)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	Fail(c, http.StatusForbidden, "forbidden", err)
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	Fail(c, http.StatusNotFound, "not_found", err)
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	Fail(c, http.StatusConflict, "conflict", err)
}

// UnprocessableEntity sends 422.
func UnprocessableEntity(c *gin.Context, err string) {
	Fail(c, http.StatusUnprocessableEntity, "unprocessable", err)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	Fail(c, http.StatusServiceUnavailable, "unavailable", err)
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	Fail(c, http.StatusInternalServerError, "internal", err)
}
