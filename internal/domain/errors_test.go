package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionErrorMessages(t *testing.T) {
	assert.Equal(t, "HTTP 401: invalid key", NewHTTPStatusError(401, "invalid key").Error())
	assert.Equal(t, "HTTP 502", NewHTTPStatusError(502, "").Error())
	assert.Equal(t, "API endpoint is empty", NewValidationError("API endpoint is empty").Error())
	assert.Equal(t, "request timed out", NewAbortedError(AbortByTimeout, nil).Error())
	assert.Equal(t, "request aborted", NewAbortedError(AbortByUser, context.Canceled).Error())
	assert.Equal(t, "send request: boom", NewNetworkError("send request", errors.New("boom")).Error())
}

func TestAsCompletionError(t *testing.T) {
	assert.Nil(t, AsCompletionError(nil))

	wrapped := fmt.Errorf("dispatch: %w", NewHTTPStatusError(500, "oops"))
	ce := AsCompletionError(wrapped)
	assert.Equal(t, KindHTTPStatus, ce.Kind)
	assert.Equal(t, 500, ce.StatusCode)

	plain := AsCompletionError(errors.New("connection reset"))
	assert.Equal(t, KindNetwork, plain.Kind)
	assert.ErrorContains(t, plain, "connection reset")
}

func TestIsAborted(t *testing.T) {
	err := fmt.Errorf("stream: %w", NewAbortedError(AbortByUser, context.Canceled))
	assert.True(t, IsAborted(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsAborted(NewValidationError("x")))
	assert.False(t, IsAborted(errors.New("x")))
}
