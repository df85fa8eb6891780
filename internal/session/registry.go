package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/eventbus"
	"github.com/cocommand/cocommand/internal/infra"
	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/pkg/models"
)

// Default concurrency bounds for the Registry's three shared semaphores,
// overridable via RegistryOptions.
const (
	DefaultLlmConcurrency      = 8
	DefaultToolConcurrency     = 32
	DefaultAsyncJobConcurrency = 64
)

// RegistryOptions configures the three named semaphores and the
// dependencies every actor the Registry spawns shares.
type RegistryOptions struct {
	LlmConcurrency      int64
	ToolConcurrency     int64
	AsyncJobConcurrency int64

	Store      messages.Store
	Bus        *eventbus.Bus
	Extensions *ExtensionRegistry
	Provider   Provider
	Log        *slog.Logger

	MaxSteps        int
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
}

func (o *RegistryOptions) setDefaults() {
	if o.LlmConcurrency <= 0 {
		o.LlmConcurrency = DefaultLlmConcurrency
	}
	if o.ToolConcurrency <= 0 {
		o.ToolConcurrency = DefaultToolConcurrency
	}
	if o.AsyncJobConcurrency <= 0 {
		o.AsyncJobConcurrency = DefaultAsyncJobConcurrency
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 8
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
}

// Registry maps session_id -> SessionRuntimeHandle, spawning a new actor
// on first use and sharing three semaphores (LLM, tool, async-job) that
// bound concurrent work across every session.
type Registry struct {
	mu       sync.Mutex
	handles  map[string]*SessionRuntimeHandle
	opts     RegistryOptions
	llmSem   *infra.Semaphore
	toolSem  *infra.Semaphore
	asyncSem *infra.Semaphore
}

// NewRegistry builds a Registry. opts.Store/Bus/Extensions/Provider must
// be non-nil; every actor the Registry spawns shares them.
func NewRegistry(opts RegistryOptions) *Registry {
	opts.setDefaults()
	return &Registry{
		handles:  make(map[string]*SessionRuntimeHandle),
		opts:     opts,
		llmSem:   infra.NewSemaphore(opts.LlmConcurrency),
		toolSem:  infra.NewSemaphore(opts.ToolConcurrency),
		asyncSem: infra.NewSemaphore(opts.AsyncJobConcurrency),
	}
}

// GetOrCreate returns the existing handle for sessionID if its mailbox
// is still open, else spawns a new actor goroutine.
func (r *Registry) GetOrCreate(sessionID string) *SessionRuntimeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[sessionID]; ok && !h.closed() {
		return h
	}
	actor := newActor(sessionID, r.opts, r.llmSem, r.toolSem, r.asyncSem)
	handle := &SessionRuntimeHandle{actor: actor}
	r.handles[sessionID] = handle
	go actor.run()
	return handle
}

// Close stops every actor's run loop. Call during daemon shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		h.actor.stop()
	}
}

// SessionRuntimeHandle is the Registry's client-facing wrapper around one
// actor's mailbox.
type SessionRuntimeHandle struct {
	actor *actor
}

// SendUserMessage enqueues a UserMessage event and starts a new run,
// blocking only until the actor accepts (or rejects) the request — not
// until the run completes. Rejection (runtime stopped) is reported as a
// cocoerr NotReady error.
func (h *SessionRuntimeHandle) SendUserMessage(ctx context.Context, parts []models.MessagePart) (RunAccepted, error) {
	reply := make(chan RunAccepted, 1)
	ev := mailboxEvent{Type: evUserMessage, Parts: parts, Reply: reply}
	select {
	case h.actor.mailbox <- ev:
	case <-ctx.Done():
		return RunAccepted{}, ctx.Err()
	case <-h.actor.done:
		return RunAccepted{}, cocoerr.NotReady("session runtime stopped")
	}
	select {
	case accepted := <-reply:
		return accepted, accepted.Err
	case <-ctx.Done():
		return RunAccepted{}, ctx.Err()
	}
}

// Cancel marks runID cancelled. Late mailbox events for that run
// (LlmStreamPart, ToolImmediateSuccess/Failure) are then ignored.
func (h *SessionRuntimeHandle) Cancel(runID, reason string) {
	h.actor.cancel(runID, reason)
}

func (h *SessionRuntimeHandle) closed() bool { return h.actor.isClosed() }
