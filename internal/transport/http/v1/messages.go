package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/viper/internal/domain"
)

// ListMessages retrieves the messages of a chat.
// GET /chats/:chat_id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	messages, err := h.service.ListMessages(c.Request().Context(), c.Param("chat_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.MessagesResponse{Messages: messages})
}

// CreateMessage stores a message with a client-assigned id.
// POST /chats/:chat_id/messages
func (h *Handler) CreateMessage(c echo.Context) error {
	var req domain.CreateMessageRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if err := h.service.CreateMessage(c.Request().Context(), c.Param("chat_id"), req.Message); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateMessage patches a message.
// PATCH /chats/:chat_id/messages/:message_id
func (h *Handler) UpdateMessage(c echo.Context) error {
	var req domain.MessagePatch
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx := c.Request().Context()
	if err := h.service.UpdateMessage(ctx, c.Param("chat_id"), c.Param("message_id"), req); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
