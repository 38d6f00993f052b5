package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/dialogd/internal/history"
	"github.com/ent0n29/dialogd/internal/llm"
	"github.com/ent0n29/dialogd/internal/observability"
	"github.com/ent0n29/dialogd/internal/transcript"
)

// ErrBackend wraps every backend exchange failure. Callers surface a single
// generic notice regardless of the underlying cause.
var ErrBackend = errors.New("backend exchange failed")

const (
	// FailureNotice is shown to the user when the backend exchange fails.
	FailureNotice = "Something went wrong while talking to the assistant. Please try again later."
	// ResetNotice confirms that the conversation context was cleared.
	ResetNotice = "Conversation history cleared. Your next message starts a fresh dialogue."
)

const defaultExchangeTimeout = 30 * time.Second

// Orchestrator runs one logical transaction per inbound event: it serializes
// all work for a user behind that user's lock, so a reset can never interleave
// with an in-flight message exchange, and at most one backend call per user is
// in flight at any time. Events for distinct users run fully in parallel.
type Orchestrator struct {
	store           *history.Store
	client          llm.Client
	archive         transcript.Store
	metrics         *observability.Metrics
	exchangeTimeout time.Duration
}

func NewOrchestrator(
	store *history.Store,
	client llm.Client,
	archive transcript.Store,
	metrics *observability.Metrics,
	exchangeTimeout time.Duration,
) *Orchestrator {
	if exchangeTimeout <= 0 {
		exchangeTimeout = defaultExchangeTimeout
	}
	return &Orchestrator{
		store:           store,
		client:          client,
		archive:         archive,
		metrics:         metrics,
		exchangeTimeout: exchangeTimeout,
	}
}

// HandleMessage processes one ordinary text message from userID and returns
// the assistant's reply. On backend failure the user's history is left
// exactly as it was: the user's own turn is deliberately not recorded, so a
// retry sees the same context the failed attempt saw.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, text string) (string, error) {
	lock := o.store.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := o.store.History(userID)
	prompt := append(snapshot, history.Turn{Role: history.RoleUser, Content: text})

	exchangeCtx, cancel := context.WithTimeout(ctx, o.exchangeTimeout)
	defer cancel()

	o.metrics.InFlightExchanges.Inc()
	started := time.Now()
	reply, err := o.client.GenerateReply(exchangeCtx, prompt)
	o.metrics.ObserveBackendLatency(time.Since(started))
	o.metrics.InFlightExchanges.Dec()

	if err != nil {
		o.metrics.Events.WithLabelValues("message", "backend_error").Inc()
		o.metrics.BackendErrors.WithLabelValues(errorReason(exchangeCtx, err)).Inc()
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	o.store.Append(userID, history.RoleUser, text)
	o.store.Append(userID, history.RoleAssistant, reply)
	o.archiveTurn(ctx, userID, history.RoleUser, text)
	o.archiveTurn(ctx, userID, history.RoleAssistant, reply)

	o.metrics.Events.WithLabelValues("message", "ok").Inc()
	o.metrics.TrackedUsers.Set(float64(o.store.TrackedUsers()))
	return reply, nil
}

// HandleReset clears userID's conversation and returns a confirmation. It
// takes the same per-user lock as HandleMessage, so a reset waits out any
// in-flight exchange instead of racing it. Resetting a never-seen user is a
// no-op that still confirms.
func (o *Orchestrator) HandleReset(_ context.Context, userID string) string {
	lock := o.store.Lock(userID)
	lock.Lock()
	o.store.Clear(userID)
	lock.Unlock()

	o.metrics.Events.WithLabelValues("reset", "ok").Inc()
	o.metrics.TrackedUsers.Set(float64(o.store.TrackedUsers()))
	return ResetNotice
}

// History exposes a snapshot of userID's bounded conversation.
func (o *Orchestrator) History(userID string) []history.Turn {
	return o.store.History(userID)
}

// archiveTurn records a turn in the transcript archive. Archive failures are
// logged and swallowed: the archive is observability, not conversation state.
func (o *Orchestrator) archiveTurn(ctx context.Context, userID string, role history.Role, content string) {
	if o.archive == nil {
		return
	}
	err := o.archive.SaveTurn(ctx, transcript.Record{
		UserID:  userID,
		Role:    string(role),
		Content: content,
	})
	if err != nil {
		log.Printf("transcript archive write failed for user %s: %v", userID, err)
	}
}

func errorReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "exchange"
	}
}
