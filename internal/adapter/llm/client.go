package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/policy"
)

const (
	// DefaultRequestTimeout bounds the time until response headers arrive.
	DefaultRequestTimeout = 60 * time.Second

	modelsPath = "/v1/models"

	// maxErrorBody caps how much of a non-2xx body is kept.
	maxErrorBody = 64 << 10
)

// Client is the HTTP completion dispatcher.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	policy     *policy.Engine
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	// Timeout races the caller's context until response headers arrive.
	// Zero means DefaultRequestTimeout.
	Timeout time.Duration
	// Policy, when set, is consulted before every dispatch.
	Policy *policy.Engine
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewClient creates a new dispatcher.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		// No client-level timeout: the stream body may stay open indefinitely.
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
		policy:     opts.Policy,
		logger:     logger,
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	return t
}

// Dispatch sends a streaming chat completion request.
func (c *Client) Dispatch(ctx context.Context, cfg domain.ModelConfig, messages []domain.ContextMessage) (*Response, error) {
	target, headers, err := c.prepare(ctx, cfg, cfg.CompletionsPath)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(&ChatCompletionRequest{
		Model:       cfg.RequestModel(),
		Messages:    messages,
		Stream:      true,
		Temperature: cfg.EffectiveTemperature(),
		MaxTokens:   cfg.EffectiveMaxTokens(),
	})
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	resp, cancel, err := c.do(ctx, http.MethodPost, target, headers, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel(nil)
		defer resp.Body.Close()
		return nil, domain.NewHTTPStatusError(resp.StatusCode, readErrorBody(resp.Body))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		Streaming:  isStreaming(resp.Header.Get("Content-Type")),
	}, nil
}

// ListModels retrieves the list of available models.
func (c *Client) ListModels(ctx context.Context, cfg domain.ModelConfig) ([]Model, error) {
	target, headers, err := c.prepare(ctx, cfg, modelsPath)
	if err != nil {
		return nil, err
	}
	headers.Set("Accept", "application/json")
	headers.Del("Content-Type")

	resp, cancel, err := c.do(ctx, http.MethodGet, target, headers, nil)
	if err != nil {
		return nil, err
	}
	defer cancel(nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewHTTPStatusError(resp.StatusCode, readErrorBody(resp.Body))
	}

	var result ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Data, nil
}

// prepare validates cfg and returns the target URL and request headers.
func (c *Client) prepare(ctx context.Context, cfg domain.ModelConfig, path string) (string, http.Header, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return "", nil, domain.NewValidationError("API endpoint is empty")
	}
	extra, err := cfg.ParseHeaders()
	if err != nil {
		return "", nil, domain.NewValidationError("headers must be valid JSON")
	}

	target := JoinURL(cfg.BaseURL, path)
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", nil, domain.NewValidationError(fmt.Sprintf("API endpoint is invalid: %s", cfg.BaseURL))
	}

	if c.policy != nil {
		decision, err := c.policy.Evaluate(ctx, policy.Input{
			Scheme:    strings.ToLower(u.Scheme),
			Host:      u.Host,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.RequestModel(),
			MaxTokens: cfg.EffectiveMaxTokens(),
		})
		if err != nil {
			return "", nil, domain.NewValidationError(fmt.Sprintf("failed to evaluate dispatch policy: %v", err))
		}
		if !decision.Allowed() {
			msg := "endpoint blocked by policy"
			if decision.Reason != "" {
				msg += ": " + decision.Reason
			}
			return "", nil, domain.NewValidationError(msg)
		}
	}

	return target, BuildHeaders(cfg.APIKey, extra), nil
}

// do issues the request with the header timeout racing ctx. On success the
// returned cancel must be called once the body is no longer needed.
func (c *Client) do(ctx context.Context, method, target string, headers http.Header, body []byte) (*http.Response, context.CancelCauseFunc, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.timeout, func() { cancel(domain.ErrRequestTimeout) })

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, nil, domain.NewValidationError(fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header = headers

	resp, err := c.httpClient.Do(httpReq)
	stopped := timer.Stop()
	if err != nil {
		defer cancel(nil)
		if reqCtx.Err() != nil {
			return nil, nil, domain.AbortFromContext(reqCtx)
		}
		return nil, nil, domain.NewNetworkError("failed to send request", err)
	}
	if !stopped && reqCtx.Err() != nil {
		resp.Body.Close()
		cancel(nil)
		return nil, nil, domain.AbortFromContext(reqCtx)
	}

	c.logger.Debug("upstream responded", "method", method, "url", target, "status", resp.StatusCode)
	return resp, cancel, nil
}

// JoinURL joins base and path with exactly one slash. An empty path uses
// the default completions path.
func JoinURL(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.Trim(path, "/") == "" {
		path = domain.DefaultCompletionsPath
	}
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(path, "/")
}

// BuildHeaders merges the default headers, extra headers and the bearer token.
// Extra headers may override the defaults; Authorization is set last when
// apiKey is non-empty.
func BuildHeaders(apiKey string, extra map[string]string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	for k, v := range extra {
		h.Set(k, v)
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return h
}

// isStreaming reports whether a 2xx body should be decoded as SSE. Only an
// explicit JSON content type selects the single-object fallback.
func isStreaming(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	return mediaType != "application/json"
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil && len(data) == 0 {
		return err.Error()
	}
	return strings.TrimSpace(string(data))
}

// cancelOnClose releases the request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}
