package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/policy"
	"github.com/xiaot623/viper/internal/sse"
)

func ptr[T any](v T) *T { return &v }

func userContext(text string) []domain.ContextMessage {
	return []domain.ContextMessage{{Role: domain.RoleUser, Content: text}}
}

func TestDispatchStream(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "team-a", r.Header.Get("X-Org"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: time.Second})
	resp, err := client.Dispatch(context.Background(), domain.ModelConfig{
		Name:        "display",
		ModelID:     "gpt-4o",
		BaseURL:     server.URL + "/",
		APIKey:      "secret",
		Headers:     `{"X-Org":"team-a","X-Drop":null}`,
		Temperature: ptr(3.5),
		MaxTokens:   ptr(0),
	}, userContext("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, resp.Streaming)
	var deltas []string
	_, err = sse.Stream(context.Background(), resp.Body, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, deltas)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, 2.0, got.Temperature)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.Equal(t, userContext("hello"), got.Messages)
}

func TestDispatchCustomPathAndJSONFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"whole"}}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{})
	resp, err := client.Dispatch(context.Background(), domain.ModelConfig{
		Name:            "local",
		BaseURL:         server.URL,
		CompletionsPath: "//api/chat",
	}, userContext("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.False(t, resp.Streaming)
}

func TestDispatchValidation(t *testing.T) {
	client := NewClient(Options{})

	tests := []struct {
		name string
		cfg  domain.ModelConfig
		want string
	}{
		{"empty endpoint", domain.ModelConfig{Name: "m", BaseURL: "   "}, "API endpoint is empty"},
		{"headers not json", domain.ModelConfig{Name: "m", BaseURL: "http://localhost", Headers: "{nope"}, "headers must be valid JSON"},
		{"headers array", domain.ModelConfig{Name: "m", BaseURL: "http://localhost", Headers: `["a"]`}, "headers must be valid JSON"},
		{"headers nested", domain.ModelConfig{Name: "m", BaseURL: "http://localhost", Headers: `{"a":{"b":1}}`}, "headers must be valid JSON"},
		{"headers trailing data", domain.ModelConfig{Name: "m", BaseURL: "http://localhost", Headers: `{"a":"b"} junk`}, "headers must be valid JSON"},
		{"no host", domain.ModelConfig{Name: "m", BaseURL: "localhost"}, "API endpoint is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Dispatch(context.Background(), tt.cfg, userContext("x"))
			require.Error(t, err)
			ce := domain.AsCompletionError(err)
			assert.Equal(t, domain.KindValidation, ce.Kind)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDispatchPolicyBlock(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	client := NewClient(Options{Policy: engine})
	_, err = client.Dispatch(context.Background(), domain.ModelConfig{Name: "m", BaseURL: "ftp://files.example"}, userContext("x"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.AsCompletionError(err).Kind)
	assert.Contains(t, err.Error(), "blocked by policy")
}

func TestDispatchHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "invalid key")
	}))
	defer server.Close()

	client := NewClient(Options{})
	_, err := client.Dispatch(context.Background(), domain.ModelConfig{Name: "m", BaseURL: server.URL}, userContext("x"))
	require.Error(t, err)

	ce := domain.AsCompletionError(err)
	assert.Equal(t, domain.KindHTTPStatus, ce.Kind)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, "invalid key", ce.Body)
	assert.Equal(t, "HTTP 401: invalid key", err.Error())
}

func TestDispatchHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Options{Timeout: 50 * time.Millisecond})
	_, err := client.Dispatch(context.Background(), domain.ModelConfig{Name: "m", BaseURL: server.URL}, userContext("x"))
	require.Error(t, err)

	ce := domain.AsCompletionError(err)
	assert.Equal(t, domain.KindAborted, ce.Kind)
	assert.Equal(t, domain.AbortByTimeout, ce.Reason)
	assert.Equal(t, "request timed out", err.Error())
}

func TestDispatchTimeoutDoesNotBoundStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: 50 * time.Millisecond})
	resp, err := client.Dispatch(context.Background(), domain.ModelConfig{Name: "m", BaseURL: server.URL}, userContext("x"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "late")
}

func TestDispatchCancelledByCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	client := NewClient(Options{Timeout: 5 * time.Second})
	_, err := client.Dispatch(ctx, domain.ModelConfig{Name: "m", BaseURL: server.URL}, userContext("x"))
	ce := domain.AsCompletionError(err)
	assert.Equal(t, domain.KindAborted, ce.Kind)
	assert.Equal(t, domain.AbortByUser, ce.Reason)
}

func TestDispatchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{Timeout: time.Second})
	_, err := client.Dispatch(context.Background(), domain.ModelConfig{Name: "m", BaseURL: url}, userContext("x"))
	assert.Equal(t, domain.KindNetwork, domain.AsCompletionError(err).Kind)
}

func TestClientListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt","object":"model","created":1,"owned_by":"openai"}]}`)
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: time.Second})
	models, err := client.ListModels(context.Background(), domain.ModelConfig{Name: "m", BaseURL: server.URL, APIKey: "secret"})
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gpt", models[0].ID)
}

func TestClientListModelsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "bad")
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: time.Second})
	_, err := client.ListModels(context.Background(), domain.ModelConfig{Name: "m", BaseURL: server.URL})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, domain.AsCompletionError(err).StatusCode)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h/v1/chat/completions", JoinURL("http://h", ""))
	assert.Equal(t, "http://h/v1/chat/completions", JoinURL("http://h///", "/"))
	assert.Equal(t, "http://h/api/x", JoinURL("http://h/", "//api/x"))
	assert.Equal(t, "http://h/base/v1/chat/completions", JoinURL(" http://h/base ", "v1/chat/completions"))
}

func TestBuildHeaders(t *testing.T) {
	h := BuildHeaders("", map[string]string{"Accept": "application/json"})
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Empty(t, h.Get("Authorization"))

	h = BuildHeaders("k", map[string]string{"Authorization": "Basic x"})
	assert.Equal(t, "Bearer k", h.Get("Authorization"))
}

func TestMockDispatcher(t *testing.T) {
	client := NewDispatcher(ModeMock, Options{})
	client.httpClient.Transport.(*MockTransport).Delay = 0

	resp, err := client.Dispatch(context.Background(), domain.ModelConfig{Name: "mock", BaseURL: "http://mock.local"}, userContext("ping"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.True(t, resp.Streaming)

	var out string
	stats, err := sse.Stream(context.Background(), resp.Body, func(d string) error {
		out += d
		return nil
	})
	require.NoError(t, err)
	assert.True(t, stats.Done)
	assert.Equal(t, `[MOCK] Received your message: "ping". This is a mock response.`, out)

	models, err := client.ListModels(context.Background(), domain.ModelConfig{Name: "mock", BaseURL: "http://mock.local"})
	require.NoError(t, err)
	assert.Len(t, models, 2)
}
