// Package llm dispatches chat completion requests to OpenAI-compatible endpoints.
package llm

import (
	"context"
	"io"
	"net/http"

	"github.com/xiaot623/viper/internal/domain"
)

// Dispatcher issues outbound completion requests.
type Dispatcher interface {
	// Dispatch validates cfg, sends the request and returns once response
	// headers have arrived. The caller must close the response body.
	Dispatch(ctx context.Context, cfg domain.ModelConfig, messages []domain.ContextMessage) (*Response, error)

	// ListModels retrieves the models the endpoint in cfg advertises.
	ListModels(ctx context.Context, cfg domain.ModelConfig) ([]Model, error)
}

// Ensure Client implements Dispatcher interface.
var _ Dispatcher = (*Client)(nil)

// Response is an upstream response whose status was 2xx.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	// Streaming is true when the body is an SSE stream rather than one JSON object.
	Streaming bool
}

// ChatCompletionRequest represents the OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []domain.ContextMessage `json:"messages"`
	Stream      bool                    `json:"stream"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
}

// Model represents a model from the models list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelsResponse represents the response from /v1/models.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
