package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/viper/internal/domain"
)

// ListModels lists model configurations and the selection.
// GET /models
func (h *Handler) ListModels(c echo.Context) error {
	resp, err := h.service.ListModels(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateModel stores a model configuration.
// POST /models
func (h *Handler) CreateModel(c echo.Context) error {
	var req domain.ModelConfig
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	model, err := h.service.CreateModel(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, model)
}

// UpdateModel partially updates a model configuration.
// PATCH /models/:model_id
func (h *Handler) UpdateModel(c echo.Context) error {
	var req domain.ModelPatch
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	model, err := h.service.UpdateModel(c.Request().Context(), c.Param("model_id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, model)
}

// DeleteModel deletes a model configuration.
// DELETE /models/:model_id
func (h *Handler) DeleteModel(c echo.Context) error {
	if err := h.service.DeleteModel(c.Request().Context(), c.Param("model_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SelectModel records the selected model.
// PUT /models/selected
func (h *Handler) SelectModel(c echo.Context) error {
	var req domain.SelectModelRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if err := h.service.SelectModel(c.Request().Context(), req); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
