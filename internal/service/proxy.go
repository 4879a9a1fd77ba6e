package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/domain"
)

// modelIDPattern is what a model name must look like to be sent upstream as the model id.
var modelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

// ProxyCompletion opens an upstream completion for a client that cannot reach
// the endpoint itself. The caller owns the returned body.
func (s *Service) ProxyCompletion(ctx context.Context, req domain.ProxyCompletionRequest) (*llm.Response, error) {
	cfg := req.Model
	if strings.TrimSpace(cfg.BaseURL) == "" {
		s.metrics.ProxyRequest(http.StatusBadRequest)
		return nil, domain.NewValidationError("model.base_url is required")
	}
	if strings.TrimSpace(cfg.ModelID) == "" && !modelIDPattern.MatchString(strings.TrimSpace(cfg.Name)) {
		s.metrics.ProxyRequest(http.StatusBadRequest)
		return nil, domain.NewValidationError("model.model_id is required")
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = req.MaxTokens
	}

	resp, err := s.dispatcher.Dispatch(ctx, cfg, req.Messages)
	if err != nil {
		s.metrics.ProxyRequest(ProxyStatus(err))
		s.logger.Warn("proxy dispatch failed", "model", cfg.RequestModel(), "error", err)
		return nil, err
	}
	s.metrics.ProxyRequest(resp.StatusCode)
	return resp, nil
}

// ProxyStatus maps a dispatch failure to the status returned to the proxy client.
func ProxyStatus(err error) int {
	var ce *domain.CompletionError
	if !errors.As(err, &ce) {
		return http.StatusBadGateway
	}
	switch ce.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindHTTPStatus:
		return ce.StatusCode
	case domain.KindAborted:
		if ce.Reason == domain.AbortByTimeout {
			return http.StatusGatewayTimeout
		}
		return 499
	default:
		return http.StatusBadGateway
	}
}
