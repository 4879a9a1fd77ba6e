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

func TestCreateAndListChats(t *testing.T) {
	e := newEcho()
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/chats", `{"title":"Trip plans"}`), rec)
	require.NoError(t, h.CreateChat(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var chat domain.ChatSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chat))
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, "Trip plans", chat.Title)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/chats", nil), rec)
	require.NoError(t, h.ListChats(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ChatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, chat.ID, resp.Chats[0].ID)
}

func TestCreateChatInvalidBody(t *testing.T) {
	e := newEcho()
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/chats", `{"title":`), rec)
	require.NoError(t, h.CreateChat(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateChat(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/chats/"+chat.ID, `{"title":"Named"}`), rec)
	c.SetParamNames("chat_id")
	c.SetParamValues(chat.ID)
	require.NoError(t, h.UpdateChat(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	chats, err := svc.ListChats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Named", chats[0].Title)

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPatch, "/chats/missing", `{"title":"x"}`), rec)
	c.SetParamNames("chat_id")
	c.SetParamValues("missing")
	require.NoError(t, h.UpdateChat(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChat(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "")
	require.NoError(t, err)

	for _, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/chats/"+chat.ID, nil), rec)
		c.SetParamNames("chat_id")
		c.SetParamValues(chat.ID)
		require.NoError(t, h.DeleteChat(c))
		assert.Equal(t, want, rec.Code)
	}
}
