// Package http provides the HTTP server of the persistence backend.
package http

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/viper/internal/observability"
	"github.com/xiaot623/viper/internal/service"
	"github.com/xiaot623/viper/internal/transport/http/llmproxy"
	v1 "github.com/xiaot623/viper/internal/transport/http/v1"
)

// NewServer creates and configures the backend HTTP server.
// It serves chats, messages, models, the completion proxy and metrics.
func NewServer(svc *service.Service, metrics *observability.Metrics, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v1.NewValidator()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	llmHandler := llmproxy.NewHandler(svc, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	llmHandler.RegisterRoutes(e)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	return e
}
