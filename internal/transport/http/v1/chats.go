package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/viper/internal/domain"
)

// ListChats lists all chats.
// GET /chats
func (h *Handler) ListChats(c echo.Context) error {
	chats, err := h.service.ListChats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.ChatsResponse{Chats: chats})
}

// CreateChat creates a chat.
// POST /chats
func (h *Handler) CreateChat(c echo.Context) error {
	var req domain.CreateChatRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	chat, err := h.service.CreateChat(c.Request().Context(), req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, chat)
}

// UpdateChat renames a chat.
// PATCH /chats/:chat_id
func (h *Handler) UpdateChat(c echo.Context) error {
	var req domain.SessionPatch
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if err := h.service.UpdateChat(c.Request().Context(), c.Param("chat_id"), req); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteChat deletes a chat and its messages.
// DELETE /chats/:chat_id
func (h *Handler) DeleteChat(c echo.Context) error {
	if err := h.service.DeleteChat(c.Request().Context(), c.Param("chat_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
