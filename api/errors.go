package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/flightservice/internal/domain"
	"github.com/Domenick1991/flightservice/internal/logging"
	"github.com/Domenick1991/flightservice/internal/realtime"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, realtime.ErrForbiddenRoom):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the JSON error envelope.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := domain.Message(err)
	switch status {
	case http.StatusInternalServerError:
		logging.FromContext(c.Request.Context()).WithError(err).Error("request failed")
		msg = "internal server error"
	case http.StatusBadGateway:
		logging.FromContext(c.Request.Context()).WithError(err).Warn("dependency failed")
	case http.StatusForbidden:
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status), "message": msg})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.Validation("invalid "+name))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, domain.Validation("malformed request body: "+err.Error()))
		return false
	}
	return true
}
