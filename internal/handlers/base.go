package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the envelope for all error replies.
type ErrorResponse struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse wraps successful replies that carry data.
type SuccessResponse struct {
	Data any `json:"data"`
}

// BaseHandler carries the pieces every handler needs.
type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs an incoming request with its request id.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	requestID, _ := c.Get("request_id")
	args = append(args, "request_id", requestID, "path", c.Request.URL.Path)
	h.logger.Info(msg, args...)
}
