package persistence

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/repository"
	"github.com/xiaot623/viper/internal/service"
	transporthttp "github.com/xiaot623/viper/internal/transport/http"
)

func newBackend(t *testing.T) *Client {
	t.Helper()
	db, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.New(db, llm.NewClient(llm.Options{Timeout: time.Second}), nil, nil)
	srv := httptest.NewServer(transporthttp.NewServer(svc, nil, nil))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestClientAgainstBackend(t *testing.T) {
	ctx := context.Background()
	client := newBackend(t)

	chat, err := client.CreateSession(ctx, domain.DefaultSessionTitle)
	require.NoError(t, err)
	require.NotEmpty(t, chat.ID)

	msg := domain.Message{
		ID:        "m1",
		Role:      domain.RoleUser,
		Content:   "Hi",
		CreatedAt: time.Now().UTC(),
		Status:    domain.MessageStatusSent,
	}
	require.NoError(t, client.AppendMessage(ctx, chat.ID, msg))

	reply := domain.Message{ID: "a1", Role: domain.RoleAssistant, CreatedAt: time.Now().UTC(), Status: domain.MessageStatusStreaming}
	require.NoError(t, client.AppendMessage(ctx, chat.ID, reply))

	content := "Hello there"
	status := domain.MessageStatusSent
	require.NoError(t, client.PatchMessage(ctx, chat.ID, "a1", domain.MessagePatch{Content: &content, Status: &status}))

	title := "Hi"
	require.NoError(t, client.PatchSession(ctx, chat.ID, domain.SessionPatch{Title: &title}))

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Hi", sessions[0].Title)

	messages, err := client.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello there", messages[1].Content)
	assert.Equal(t, domain.MessageStatusSent, messages[1].Status)

	boot, err := client.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, boot.CurrentChatID)

	require.NoError(t, client.DeleteSession(ctx, chat.ID))
	err = client.DeleteSession(ctx, chat.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestClientNotFound(t *testing.T) {
	ctx := context.Background()
	client := newBackend(t)

	status := domain.MessageStatusSent
	err := client.PatchMessage(ctx, "nope", "m1", domain.MessagePatch{Status: &status})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "message not found", se.Message)
}

func TestClientModels(t *testing.T) {
	ctx := context.Background()
	client := newBackend(t)

	saved, err := client.SaveModel(ctx, domain.ModelConfig{Name: "llama3", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	require.NoError(t, client.SelectModel(ctx, saved.ID, saved.Name))

	boot, err := client.Bootstrap(ctx)
	require.NoError(t, err)
	require.Len(t, boot.Models, 1)
	assert.Equal(t, "llama3", boot.SelectedModel)

	require.NoError(t, client.DeleteModel(ctx, saved.ID))

	_, err = client.SaveModel(ctx, domain.ModelConfig{Name: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode)
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	_, err := client.ListSessions(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
