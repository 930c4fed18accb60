package registrations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/pkg/response"
)

// writeError maps service errors to stable response codes. Clients branch on
// the code, so each kind keeps its own.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Fail(c, http.StatusNotFound, "not_found", "registration not found")
	case errors.Is(err, ErrEventNotFound):
		response.Fail(c, http.StatusNotFound, "event_not_found", "event not found")
	case errors.Is(err, ErrTooEarly):
		response.Fail(c, http.StatusUnprocessableEntity, "too_early", "check-in is not open yet")
	case errors.Is(err, ErrRegistrationClosed):
		response.Fail(c, http.StatusUnprocessableEntity, "registration_closed", "registrations are closed for this event")
	case errors.Is(err, ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, ErrEventFull):
		response.Fail(c, http.StatusConflict, "event_full", "event is full")
	case errors.Is(err, ErrAlreadyRegistered):
		response.Fail(c, http.StatusConflict, "already_registered", "already registered for this event")
	default:
		logger.Error("registration request failed", zap.Error(err), zap.String("path", c.FullPath()))
		response.Fail(c, http.StatusInternalServerError, "persistence_failure", "storage failure")
	}
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
