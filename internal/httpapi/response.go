package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/idle"
	"github.com/normanking/lipsync/internal/lipsync"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondSuccess(c *gin.Context, httpStatus int, data any) {
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: "ok",
		Code:    httpStatus,
		Data:    data,
	})
}

func respondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, anim.ErrClipNotFound):
		return http.StatusNotFound
	case errors.Is(err, anim.ErrMalformedClip),
		errors.Is(err, idle.ErrUnknownGenerator),
		errors.Is(err, idle.ErrUnknownSetting),
		errors.Is(err, idle.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, lipsync.ErrInvalidMode),
		errors.Is(err, anim.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	respondError(c, status, err.Error())
}
