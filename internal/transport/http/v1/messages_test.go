package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/viper/internal/domain"
)

func TestCreateAndListMessages(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "")
	require.NoError(t, err)

	body := `{"id":"m1","role":"user","content":"hello","created_at":"2026-01-02T03:04:05Z","status":"sent","error":""}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/chats/"+chat.ID+"/messages", body), rec)
	c.SetParamNames("chat_id")
	c.SetParamValues(chat.ID)
	require.NoError(t, h.CreateMessage(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages", nil), rec)
	c.SetParamNames("chat_id")
	c.SetParamValues(chat.ID)
	require.NoError(t, h.ListMessages(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, 2026, resp.Messages[0].CreatedAt.Year())
}

func TestCreateMessageValidation(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "")
	require.NoError(t, err)

	cases := map[string]string{
		"missing id":   `{"role":"user","content":"x","status":"sent"}`,
		"bad role":     `{"id":"m1","role":"system","content":"x","status":"sent"}`,
		"bad status":   `{"id":"m1","role":"user","content":"x","status":"done"}`,
		"invalid json": `{"id":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, "/chats/"+chat.ID+"/messages", body), rec)
			c.SetParamNames("chat_id")
			c.SetParamValues(chat.ID)
			require.NoError(t, h.CreateMessage(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateMessageUnknownChat(t *testing.T) {
	e := newEcho()
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/chats/nope/messages", `{"id":"m1","role":"user","content":"x","status":"sent"}`), rec)
	c.SetParamNames("chat_id")
	c.SetParamValues("nope")
	require.NoError(t, h.CreateMessage(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMessage(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "")
	require.NoError(t, err)
	require.NoError(t, svc.CreateMessage(t.Context(), chat.ID, domain.Message{
		ID: "a1", Role: domain.RoleAssistant, Status: domain.MessageStatusStreaming,
	}))

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/", `{"status":"aborted","error":""}`), rec)
	c.SetParamNames("chat_id", "message_id")
	c.SetParamValues(chat.ID, "a1")
	require.NoError(t, h.UpdateMessage(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	messages, err := svc.ListMessages(t.Context(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusAborted, messages[0].Status)

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPatch, "/", `{"status":"sent"}`), rec)
	c.SetParamNames("chat_id", "message_id")
	c.SetParamValues(chat.ID, "missing")
	require.NoError(t, h.UpdateMessage(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPatch, "/", `{"status":"finished"}`), rec)
	c.SetParamNames("chat_id", "message_id")
	c.SetParamValues(chat.ID, "a1")
	require.NoError(t, h.UpdateMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
