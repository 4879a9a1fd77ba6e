package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/viper/internal/domain"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 answers.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is an HTTP client for the persistence backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateSession creates a chat and returns it with its assigned id.
func (c *Client) CreateSession(ctx context.Context, title string) (*domain.ChatSession, error) {
	var chat domain.ChatSession
	if err := c.do(ctx, http.MethodPost, "/chats", domain.CreateChatRequest{Title: title}, &chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &chat, nil
}

// PatchSession updates chat fields.
func (c *Client) PatchSession(ctx context.Context, id string, patch domain.SessionPatch) error {
	if err := c.do(ctx, http.MethodPatch, "/chats/"+url.PathEscape(id), patch, nil); err != nil {
		return fmt.Errorf("failed to patch chat: %w", err)
	}
	return nil
}

// DeleteSession deletes a chat and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// AppendMessage stores a message under sessionID.
func (c *Client) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	path := "/chats/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, domain.CreateMessageRequest{Message: msg}, nil); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// PatchMessage updates message fields.
func (c *Client) PatchMessage(ctx context.Context, sessionID, messageID string, patch domain.MessagePatch) error {
	path := "/chats/" + url.PathEscape(sessionID) + "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodPatch, path, patch, nil); err != nil {
		return fmt.Errorf("failed to patch message: %w", err)
	}
	return nil
}

// ListSessions returns all chats, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]domain.ChatSession, error) {
	var resp domain.ChatsResponse
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return resp.Chats, nil
}

// ListMessages returns the messages of a chat in creation order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var resp domain.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(sessionID)+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return resp.Messages, nil
}

// Bootstrap returns models, chats and the current selection.
func (c *Client) Bootstrap(ctx context.Context) (*domain.BootstrapResponse, error) {
	var resp domain.BootstrapResponse
	if err := c.do(ctx, http.MethodGet, "/bootstrap", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to bootstrap: %w", err)
	}
	return &resp, nil
}

// SaveModel creates a model configuration.
func (c *Client) SaveModel(ctx context.Context, model domain.ModelConfig) (*domain.ModelConfig, error) {
	var saved domain.ModelConfig
	if err := c.do(ctx, http.MethodPost, "/models", model, &saved); err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}
	return &saved, nil
}

// DeleteModel removes a model configuration.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/models/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

// SelectModel marks a model as selected.
func (c *Client) SelectModel(ctx context.Context, id, name string) error {
	if err := c.do(ctx, http.MethodPut, "/models/selected", domain.SelectModelRequest{ID: id, Name: name}, nil); err != nil {
		return fmt.Errorf("failed to select model: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(data))
		var errResp domain.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
