package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncpanel/internal/client/jobservice"
	"syncpanel/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail writes err using the status its kind implies, or fallback for errors
// without one.
//
//	*service.LaunchError  502, user message, meta.start_failure
//	*jobservice.APIError  502, meta.upstream_status
//	deadline exceeded     504
func Fail(c *gin.Context, fallback int, err error) {
	var le *service.LaunchError
	if errors.As(err, &le) {
		Error(c, http.StatusBadGateway, le.UserMessage, map[string]any{
			"start_failure": errors.Is(err, service.ErrStartFailure),
		})
		return
	}
	var ae *jobservice.APIError
	if errors.As(err, &ae) {
		msg := ae.Detail()
		if msg == "" {
			msg = err.Error()
		}
		Error(c, http.StatusBadGateway, msg, map[string]any{"upstream_status": ae.Status})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		Error(c, http.StatusGatewayTimeout, err.Error(), nil)
		return
	}
	Error(c, fallback, err.Error(), nil)
}
