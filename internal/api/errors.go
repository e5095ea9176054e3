package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an error type to an HTTP status.
func statusFor(t errors.ErrorType) int {
	switch t {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeValidation, errors.ErrorTypeConfig:
		return http.StatusBadRequest
	case errors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorTypeAuthentication, errors.ErrorTypeConnection,
		errors.ErrorTypeData, errors.ErrorTypeHealth:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	t := errors.TypeOf(err)
	status := statusFor(t)
	if wait, ok := errors.RetryAfter(err); ok && status == http.StatusTooManyRequests {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: string(t), Message: err.Error()})
}
