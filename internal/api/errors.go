package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/dbstation/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryLifecycle),
		errors.IsCategory(err, errors.CategoryState),
		errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryConfiguration):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryAudioSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(c echo.Context, err error, message string) error {
	code := statusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}

	s.logger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", err,
		"code", code,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"ip", c.RealIP(),
	)
	return c.JSON(code, resp)
}
