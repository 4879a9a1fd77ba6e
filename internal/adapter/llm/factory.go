package llm

import (
	"log/slog"
	"strings"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "VIPER_MODE"
	// ModeMock indicates the mock upstream should be used.
	ModeMock = "MOCK"
)

// NewDispatcher creates a dispatcher for mode. If mode is MOCK the HTTP
// transport is replaced by a MockTransport; everything else (validation,
// policy, timeouts) behaves as with a real endpoint.
func NewDispatcher(mode string, opts Options) *Client {
	if strings.EqualFold(mode, ModeMock) && opts.Transport == nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("VIPER_MODE=MOCK detected, using mock LLM transport")
		opts.Transport = NewMockTransport()
	}
	return NewClient(opts)
}
