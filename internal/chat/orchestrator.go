// Package chat runs completions: it dispatches a session's context to the
// selected model and streams the reply into an assistant message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/viper/internal/adapter/llm"
	"github.com/xiaot623/viper/internal/domain"
	"github.com/xiaot623/viper/internal/estimate"
	"github.com/xiaot623/viper/internal/observability"
	"github.com/xiaot623/viper/internal/registry"
	"github.com/xiaot623/viper/internal/session"
	"github.com/xiaot623/viper/internal/sse"
)

// DefaultSyncTimeout bounds each best-effort push after a completion ends.
const DefaultSyncTimeout = 10 * time.Second

// ContinueDirective is prepended to the context of a continue request.
const ContinueDirective = "Continue your previous reply from exactly where it stopped. Do not repeat any text you have already written."

var (
	// ErrBusy is returned when a completion is already in flight.
	ErrBusy = errors.New("a completion is already in progress")
	// ErrNotAssistant is returned when retry or continue targets a non-assistant message.
	ErrNotAssistant = errors.New("only assistant messages can be retried or continued")
	// ErrStopped is the cancellation cause set by Stop.
	ErrStopped = errors.New("stopped by user")
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the orchestrator's position in a completion.
type State int

const (
	StateIdle State = iota
	// StateSending: the request is being validated and issued.
	StateSending
	// StateStreaming: response headers arrived and deltas are being applied.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// ActiveRequest identifies the completion in flight.
type ActiveRequest struct {
	SessionID          string
	AssistantMessageID string
	Mode               domain.CompletionMode

	state  State
	cancel context.CancelCauseFunc
}

// Result describes how a completion ended.
type Result struct {
	SessionID string
	MessageID string
	Status    domain.MessageStatus
	Error     string
}

// Options configures an Orchestrator.
type Options struct {
	SyncTimeout time.Duration
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Orchestrator coordinates dispatch, decoding, cancellation and session
// mutation. At most one completion runs at a time across all sessions.
type Orchestrator struct {
	store      *session.Store
	registry   registry.Registry
	dispatcher llm.Dispatcher

	syncTimeout time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu     sync.Mutex
	active *ActiveRequest
}

// New creates an orchestrator.
func New(store *session.Store, reg registry.Registry, dispatcher llm.Dispatcher, opts Options) *Orchestrator {
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       store,
		registry:    reg,
		dispatcher:  dispatcher,
		syncTimeout: syncTimeout,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// State reports the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return StateIdle
	}
	return o.active.state
}

// Active returns a copy of the in-flight request, if any.
func (o *Orchestrator) Active() (ActiveRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ActiveRequest{}, false
	}
	return ActiveRequest{
		SessionID:          o.active.SessionID,
		AssistantMessageID: o.active.AssistantMessageID,
		Mode:               o.active.Mode,
		state:              o.active.state,
	}, true
}

// Stop cancels the in-flight completion. The completion itself finalizes
// the message and clears the handle. It reports whether anything was running.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return false
	}
	o.active.cancel(ErrStopped)
	return true
}

// Send appends text as a user message to the active session (creating one
// if needed) and streams the reply into a new assistant message. It blocks
// until the completion ends.
func (o *Orchestrator) Send(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyMessage
	}
	h, reqCtx, err := o.reserve(ctx, domain.ModeNormal)
	if err != nil {
		return Result{}, err
	}

	sessionID, err := o.store.EnsureActive(ctx)
	if err != nil {
		o.release(h)
		return Result{}, err
	}
	if err := o.store.Append(ctx, sessionID, session.NewMessage(domain.RoleUser, text, domain.MessageStatusSent)); err != nil {
		o.release(h)
		return Result{}, err
	}
	placeholder := session.NewMessage(domain.RoleAssistant, "", domain.MessageStatusStreaming)
	if err := o.store.Append(ctx, sessionID, placeholder); err != nil {
		o.release(h)
		return Result{}, err
	}

	o.bind(h, sessionID, placeholder.ID)
	return o.run(ctx, reqCtx, h), nil
}

// Retry clears an assistant message and streams a new reply into it, using
// only the messages before it as context.
func (o *Orchestrator) Retry(ctx context.Context, sessionID, messageID string) (Result, error) {
	return o.restart(ctx, sessionID, messageID, domain.ModeRetry)
}

// Continue streams more text onto the end of an assistant message.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, messageID string) (Result, error) {
	return o.restart(ctx, sessionID, messageID, domain.ModeContinue)
}

func (o *Orchestrator) restart(ctx context.Context, sessionID, messageID string, mode domain.CompletionMode) (Result, error) {
	h, reqCtx, err := o.reserve(ctx, mode)
	if err != nil {
		return Result{}, err
	}

	msg, ok := o.store.Message(sessionID, messageID)
	if !ok {
		o.release(h)
		return Result{}, session.ErrMessageNotFound
	}
	if msg.Role != domain.RoleAssistant {
		o.release(h)
		return Result{}, ErrNotAssistant
	}

	o.bind(h, sessionID, messageID)
	return o.run(ctx, reqCtx, h), nil
}

// ContextUsage estimates how much of the selected model's token budget a
// session uses. Without a selected model the budget is zero.
func (o *Orchestrator) ContextUsage(ctx context.Context, sessionID string) (estimate.Usage, error) {
	cfg, err := o.registry.Selected(ctx)
	if err != nil {
		return estimate.Usage{}, err
	}
	budget := 0
	if cfg != nil {
		budget = cfg.EffectiveMaxTokens()
	}
	return estimate.ForMessages(o.store.Messages(sessionID), budget), nil
}

// reserve claims the single-flight slot.
func (o *Orchestrator) reserve(ctx context.Context, mode domain.CompletionMode) (*ActiveRequest, context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return nil, nil, ErrBusy
	}
	reqCtx, cancel := context.WithCancelCause(ctx)
	o.active = &ActiveRequest{Mode: mode, state: StateSending, cancel: cancel}
	return o.active, reqCtx, nil
}

func (o *Orchestrator) bind(h *ActiveRequest, sessionID, messageID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h.SessionID = sessionID
	h.AssistantMessageID = messageID
}

func (o *Orchestrator) setState(h *ActiveRequest, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == h {
		h.state = state
	}
}

func (o *Orchestrator) isActive(h *ActiveRequest) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active == h
}

// release clears h. Only the invocation that reserved h calls it.
func (o *Orchestrator) release(h *ActiveRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == h {
		o.active = nil
	}
	h.cancel(nil)
}

// run drives one completion from start to finalization.
func (o *Orchestrator) run(ctx, reqCtx context.Context, h *ActiveRequest) Result {
	started := time.Now()
	o.metrics.CompletionStarted()

	stats, err := o.stream(reqCtx, h)
	o.metrics.ObserveStream(stats.Deltas, stats.Malformed)

	res := o.finish(ctx, h, err)
	o.metrics.CompletionFinished(h.Mode.String(), string(res.Status), time.Since(started))
	return res
}

// stream prepares the target message, dispatches and applies deltas.
func (o *Orchestrator) stream(ctx context.Context, h *ActiveRequest) (sse.Stats, error) {
	err := o.store.UpdateMessage(h.SessionID, h.AssistantMessageID, func(m *domain.Message) {
		if h.Mode == domain.ModeRetry {
			m.Content = ""
		}
		m.Status = domain.MessageStatusStreaming
		m.Error = ""
	})
	if err != nil {
		return sse.Stats{}, abortOr(ctx, err)
	}
	contextMsgs := BuildContext(o.store.Messages(h.SessionID), h.AssistantMessageID, h.Mode)

	cfg, err := o.registry.Selected(ctx)
	if err != nil {
		return sse.Stats{}, abortOr(ctx, domain.NewValidationError(fmt.Sprintf("failed to load model: %v", err)))
	}
	if cfg == nil {
		return sse.Stats{}, domain.NewValidationError("no model selected")
	}

	resp, err := o.dispatcher.Dispatch(ctx, *cfg, contextMsgs)
	if err != nil {
		return sse.Stats{}, err
	}
	defer resp.Body.Close()

	o.setState(h, StateStreaming)
	return sse.Decode(ctx, resp.Body, resp.Streaming, func(delta string) error {
		return o.applyDelta(h, delta)
	})
}

// abortOr reports a stopped or timed out request as aborted, whatever
// error the interrupted step produced.
func abortOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.AbortFromContext(ctx)
	}
	return err
}

func (o *Orchestrator) applyDelta(h *ActiveRequest, delta string) error {
	if !o.isActive(h) {
		return domain.NewAbortedError(domain.AbortByUser, ErrStopped)
	}
	return o.store.UpdateMessage(h.SessionID, h.AssistantMessageID, func(m *domain.Message) {
		m.Content += delta
	})
}

// finish sets the terminal status, clears the handle and pushes the result.
func (o *Orchestrator) finish(ctx context.Context, h *ActiveRequest, err error) Result {
	res := Result{SessionID: h.SessionID, MessageID: h.AssistantMessageID}

	var patch domain.MessagePatch
	if err == nil {
		res.Status = domain.MessageStatusSent
	} else {
		res.Status, res.Error = classify(err)
	}

	if err := o.store.UpdateMessage(h.SessionID, h.AssistantMessageID, func(m *domain.Message) {
		m.Status = res.Status
		m.Error = res.Error
		if res.Status == domain.MessageStatusSent {
			content := m.Content
			patch.Content = &content
		}
	}); err != nil {
		o.logger.Warn("failed to set final message status", "session_id", h.SessionID, "message_id", h.AssistantMessageID, "status", res.Status, "error", err)
	}
	o.release(h)

	if res.Status == domain.MessageStatusError {
		o.logger.Info("completion failed", "session_id", res.SessionID, "message_id", res.MessageID, "error", res.Error)
	}

	status := res.Status
	errText := res.Error
	patch.Status = &status
	patch.Error = &errText
	o.sync(ctx, h, patch, res.Status == domain.MessageStatusSent)
	return res
}

// classify maps an error to the terminal status and the text shown on the message.
func classify(err error) (domain.MessageStatus, string) {
	ce := domain.AsCompletionError(err)
	switch ce.Kind {
	case domain.KindAborted:
		if ce.Reason == domain.AbortByTimeout {
			return domain.MessageStatusAborted, ce.Error()
		}
		return domain.MessageStatusAborted, ""
	case domain.KindValidation, domain.KindNetwork, domain.KindHTTPStatus, domain.KindProtocol:
		return domain.MessageStatusError, ce.Error()
	default:
		return domain.MessageStatusError, ce.Error()
	}
}

// sync pushes the final message fields and, after a success, the session
// timestamp. Failures are logged and never change the message.
func (o *Orchestrator) sync(ctx context.Context, h *ActiveRequest, patch domain.MessagePatch, touch bool) {
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.syncTimeout)
	defer cancel()

	if touch {
		if err := o.store.Touch(syncCtx, h.SessionID); err != nil {
			o.logger.Warn("failed to sync session", "session_id", h.SessionID, "error", err)
		}
	}
	if err := o.store.SyncMessage(syncCtx, h.SessionID, h.AssistantMessageID, patch); err != nil {
		o.logger.Warn("failed to sync message", "session_id", h.SessionID, "message_id", h.AssistantMessageID, "error", err)
	}
}
