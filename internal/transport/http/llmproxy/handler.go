// Package llmproxy relays completion requests for clients that cannot reach an endpoint directly.
package llmproxy

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/service"
)

const copyBufferSize = 4096

// Handler handles LLM proxy HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewHandler creates a new LLM proxy handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers LLM proxy routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/llm/chat/completions", h.ChatCompletions)
}

// ChatCompletions opens the upstream completion and pipes its raw bytes back.
// POST /llm/chat/completions
func (h *Handler) ChatCompletions(c echo.Context) error {
	var req domain.ProxyCompletionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	resp, err := h.service.ProxyCompletion(ctx, req)
	if err != nil {
		var ce *domain.CompletionError
		if errors.As(err, &ce) && ce.Kind == domain.KindHTTPStatus {
			// Upstream errors are passed through unchanged.
			return c.Blob(ce.StatusCode, echo.MIMETextPlainCharsetUTF8, []byte(ce.Body))
		}
		if ctx.Err() != nil {
			// The client went away; there is nobody to answer.
			return nil
		}
		return c.JSON(service.ProxyStatus(err), domain.ErrorResponse{Error: err.Error()})
	}
	defer resp.Body.Close()

	contentType := "text/event-stream"
	if !resp.Streaming {
		contentType = echo.MIMEApplicationJSON
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := c.Response().Write(buf[:n]); err != nil {
				h.logger.Warn("failed to write proxy response", "error", err)
				return nil
			}
			c.Response().Flush()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			// Can't change status code after writing response
			if ctx.Err() == nil {
				h.logger.Warn("upstream stream failed", "error", readErr)
			}
			return nil
		}
	}
}
