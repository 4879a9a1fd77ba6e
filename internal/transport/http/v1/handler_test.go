package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/repository"
	"github.com/xiaot623/viper/internal/service"
)

func newTestHandler(t *testing.T) (*Handler, *service.Service) {
	t.Helper()
	db, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.New(db, llm.NewClient(llm.Options{Timeout: time.Second}), nil, nil)
	return NewHandler(svc), svc
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHealth(t *testing.T) {
	e := newEcho()
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestBootstrapHandler(t *testing.T) {
	e := newEcho()
	h, svc := newTestHandler(t)

	chat, err := svc.CreateChat(t.Context(), "first")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/bootstrap", nil), rec)
	require.NoError(t, h.Bootstrap(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.BootstrapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, chat.ID, resp.CurrentChatID)
	assert.Len(t, resp.Chats, 1)
	assert.NotNil(t, resp.Models)
}

func TestRegisterRoutes(t *testing.T) {
	e := newEcho()
	h, _ := newTestHandler(t)
	h.RegisterRoutes(e)

	req := jsonRequest(http.MethodPut, "/models/selected", `{"name":"llama"}`)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "llama", resp.SelectedModel)
}
