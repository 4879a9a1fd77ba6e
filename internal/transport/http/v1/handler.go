// Package v1 provides the backend's HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers backend routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/bootstrap", h.Bootstrap)

	// Chats
	e.GET("/chats", h.ListChats)
	e.POST("/chats", h.CreateChat)
	e.PATCH("/chats/:chat_id", h.UpdateChat)
	e.DELETE("/chats/:chat_id", h.DeleteChat)

	// Messages
	e.GET("/chats/:chat_id/messages", h.ListMessages)
	e.POST("/chats/:chat_id/messages", h.CreateMessage)
	e.PATCH("/chats/:chat_id/messages/:message_id", h.UpdateMessage)

	// Models
	e.GET("/models", h.ListModels)
	e.POST("/models", h.CreateModel)
	e.PUT("/models/selected", h.SelectModel)
	e.PATCH("/models/:model_id", h.UpdateModel)
	e.DELETE("/models/:model_id", h.DeleteModel)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if err := h.service.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Bootstrap returns models, chats and the current selection.
// GET /bootstrap
func (h *Handler) Bootstrap(c echo.Context) error {
	resp, err := h.service.Bootstrap(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Validator adapts validator/v10 to echo.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a request validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindAndValidate decodes the body into req and validates it.
// It writes the 400 response itself and reports whether the caller should continue.
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	}
	return true, nil
}

func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	return c.JSON(status, domain.ErrorResponse{Error: err.Error()})
}
