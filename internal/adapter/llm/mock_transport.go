package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/viper/internal/domain"
)

// MockTransport is an in-process upstream for offline use and tests. It
// answers completion requests with an SSE stream echoing the last user
// message and GET /v1/models with a fixed list.
type MockTransport struct {
	// Delay is the pause between stream events.
	Delay time.Duration
	// ChunkRunes is the size of each delta in runes. Zero means 10.
	ChunkRunes int
}

// Ensure MockTransport implements http.RoundTripper.
var _ http.RoundTripper = (*MockTransport)(nil)

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{Delay: 20 * time.Millisecond}
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}

	if req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, modelsPath) {
		return m.listModels(req)
	}
	if req.Method != http.MethodPost {
		return newMockResponse(req, http.StatusMethodNotAllowed, "application/json", io.NopCloser(strings.NewReader(`{"error":{"message":"method not allowed"}}`))), nil
	}

	var body ChatCompletionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return newMockResponse(req, http.StatusBadRequest, "application/json", io.NopCloser(strings.NewReader(`{"error":{"message":"invalid request body"}}`))), nil
	}

	id := "mock-chatcmpl-" + uuid.New().String()[:8]
	chunks := m.splitIntoChunks(m.generateMockResponse(&body))

	pr, pw := io.Pipe()
	go m.writeStream(req.Context(), pw, id, body.Model, chunks)
	return newMockResponse(req, http.StatusOK, "text/event-stream", pr), nil
}

func (m *MockTransport) writeStream(ctx context.Context, pw *io.PipeWriter, id, model string, chunks []string) {
	for i, chunk := range chunks {
		if i > 0 && m.Delay > 0 {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-time.After(m.Delay):
			}
		}

		payload, _ := json.Marshal(map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{{
				"index": 0,
				"delta": map[string]string{"role": "assistant", "content": chunk},
			}},
		})
		if _, err := fmt.Fprintf(pw, "data: %s\n\n", payload); err != nil {
			return
		}
	}
	fmt.Fprint(pw, "data: [DONE]\n\n")
	pw.Close()
}

func (m *MockTransport) listModels(req *http.Request) (*http.Response, error) {
	now := time.Now().Unix()
	payload, err := json.Marshal(ModelsResponse{
		Object: "list",
		Data: []Model{
			{ID: "mock-gpt-4", Object: "model", Created: now, OwnedBy: "mock"},
			{ID: "mock-gpt-3.5-turbo", Object: "model", Created: now, OwnedBy: "mock"},
		},
	})
	if err != nil {
		return nil, err
	}
	return newMockResponse(req, http.StatusOK, "application/json", io.NopCloser(bytes.NewReader(payload))), nil
}

// generateMockResponse echoes the last user message.
func (m *MockTransport) generateMockResponse(req *ChatCompletionRequest) string {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response."
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// splitIntoChunks splits s into chunks of ChunkRunes runes.
func (m *MockTransport) splitIntoChunks(s string) []string {
	size := m.ChunkRunes
	if size <= 0 {
		size = 10
	}
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		chunks = append(chunks, string(runes[i:min(i+size, len(runes))]))
	}
	return chunks
}

func newMockResponse(req *http.Request, status int, contentType string, body io.ReadCloser) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       body,
		Request:    req,
	}
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
