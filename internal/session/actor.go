package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cocommand/cocommand/internal/eventbus"
	"github.com/cocommand/cocommand/internal/infra"
	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// asyncToolNames are the tool names dispatched through the async-job path
// (CallTool is_async = true) rather than run synchronously under the tool
// semaphore.
var asyncToolNames = map[string]bool{
	"subagent_run":              true,
	"agent_execute-agent":       true,
}

// actor owns one session's run state. Everything but cancel() and stop()
// is only ever touched from the run() goroutine; cancellation crosses
// goroutines through cancelMu instead of shared mutable run state.
type actor struct {
	sessionID string
	mailbox   chan mailboxEvent
	done      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once

	store      messages.Store
	bus        *eventbus.Bus
	extensions *ExtensionRegistry
	provider   Provider
	log        *slog.Logger
	maxSteps   int

	temperature     float64
	maxOutputTokens int
	systemPrompt    string

	llmSem   *infra.Semaphore
	toolSem  *infra.Semaphore
	asyncSem *infra.Semaphore

	cancelMu       sync.Mutex
	cancelled      *cancelRing
	cancelReasons  map[string]string
	runCancelFns   map[string]context.CancelFunc

	// run()-goroutine-only state.
	current          *runState
	activeExtensions []string
	schemaCache      map[string]*jsonschema.Schema

	// asyncJobs tracks every in-flight async tool job by job_id, independent
	// of current: a job started under one run can resolve after that run
	// has finished or been cancelled, and its Background* event and final
	// tool part must still land.
	asyncJobs map[string]*asyncJobState
}

// asyncJobState is the actor-level record for one in-flight async tool
// job, kept outside runState so it survives finishRun.
type asyncJobState struct {
	RunID     string
	CallID    string
	PartID    string
	MessageID string
	ToolName  string
}

func newActor(sessionID string, opts RegistryOptions, llmSem, toolSem, asyncSem *infra.Semaphore) *actor {
	return &actor{
		sessionID:    sessionID,
		mailbox:      make(chan mailboxEvent, 64),
		done:         make(chan struct{}),
		stopCh:       make(chan struct{}),
		store:        opts.Store,
		bus:          opts.Bus,
		extensions:   opts.Extensions,
		provider:     opts.Provider,
		log:          opts.Log.With("session_id", sessionID),
		maxSteps:     opts.MaxSteps,
		temperature:     opts.Temperature,
		maxOutputTokens: opts.MaxOutputTokens,
		systemPrompt:    opts.SystemPrompt,
		llmSem:       llmSem,
		toolSem:      toolSem,
		asyncSem:     asyncSem,
		cancelled:     newCancelRing(16),
		cancelReasons: make(map[string]string),
		runCancelFns:  make(map[string]context.CancelFunc),
		schemaCache:  make(map[string]*jsonschema.Schema),
		asyncJobs:    make(map[string]*asyncJobState),
	}
}

// run is the actor's entire mutation surface: one goroutine draining the
// mailbox until stop() closes stopCh or the mailbox channel itself closes.
func (a *actor) run() {
	defer close(a.done)
	for {
		select {
		case ev, ok := <-a.mailbox:
			if !ok {
				return
			}
			a.handle(ev)
		case <-a.stopCh:
			return
		}
	}
}

func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

func (a *actor) isClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// sendMailbox delivers ev from a helper goroutine (callLlm, executeTool),
// giving up if the actor stopped in the meantime.
func (a *actor) sendMailbox(ev mailboxEvent) {
	select {
	case a.mailbox <- ev:
	case <-a.stopCh:
	}
}

func (a *actor) registerRunCancel(runID string, cancel context.CancelFunc) {
	a.cancelMu.Lock()
	a.runCancelFns[runID] = cancel
	a.cancelMu.Unlock()
}

func (a *actor) unregisterRunCancel(runID string) {
	a.cancelMu.Lock()
	delete(a.runCancelFns, runID)
	a.cancelMu.Unlock()
}

func (a *actor) forgetCancelReason(runID string) {
	a.cancelMu.Lock()
	delete(a.cancelReasons, runID)
	a.cancelMu.Unlock()
}

func (a *actor) isCancelled(runID string) bool {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	return a.cancelled.contains(runID)
}

// cancelReason returns the reason cancel() recorded for runID, if any.
func (a *actor) cancelReason(runID string) string {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	return a.cancelReasons[runID]
}

// cancel marks runID cancelled and, if it is still the in-flight run,
// cancels its context so the provider stream and any synchronous tool
// calls unwind promptly. The reason is surfaced on SessionRunCancelled
// once the cancelled stream actually unwinds, falling back to it when
// the provider reports no error of its own.
func (a *actor) cancel(runID, reason string) {
	a.cancelMu.Lock()
	a.cancelled.add(runID)
	a.cancelReasons[runID] = reason
	cancel, ok := a.runCancelFns[runID]
	delete(a.runCancelFns, runID)
	a.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

func (a *actor) handle(ev mailboxEvent) {
	switch ev.Type {
	case evUserMessage:
		a.handleUserMessage(ev)
	case evLlmStreamPart:
		a.handleLlmStreamPart(ev)
	case evLlmFinished:
		a.handleLlmFinished(ev)
	case evLlmFailed:
		a.handleLlmFailed(ev)
	case evToolImmediateSuccess:
		a.handleToolImmediateResult(ev, true)
	case evToolImmediateFailure:
		a.handleToolImmediateResult(ev, false)
	case evToolAsyncSpawned:
		a.handleToolAsyncSpawned(ev)
	case evToolAsyncCompleted:
		a.handleToolAsyncResult(ev, true)
	case evToolAsyncFailed:
		a.handleToolAsyncResult(ev, false)
	}
}

// publish stamps the session id and sends ev on the bus.
func (a *actor) publish(ev models.Event) {
	ev.SessionID = a.sessionID
	a.bus.Publish(ev)
}
