package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/eventbus"
	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/pkg/models"
)

// fakeProvider replays one canned set of stream events per call to
// Stream, appending a ProviderFinish to each so callers never need to.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	steps [][]ProviderEvent
}

func (p *fakeProvider) Stream(_ context.Context, _ []ProviderMessage, _ []ToolDescriptor, _ LlmOptions) (<-chan ProviderEvent, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	var events []ProviderEvent
	switch {
	case idx < len(p.steps):
		events = p.steps[idx]
	case len(p.steps) > 0:
		events = p.steps[len(p.steps)-1]
	}
	ch := make(chan ProviderEvent, len(events)+1)
	for _, ev := range events {
		ch <- ev
	}
	ch <- ProviderEvent{Type: ProviderFinish}
	close(ch)
	return ch, nil
}

type fakeTool struct {
	descriptor ToolDescriptor
	output     json.RawMessage
	err        error
	approval   bool
}

func (t *fakeTool) Descriptor() ToolDescriptor { return t.descriptor }

func (t *fakeTool) Execute(context.Context, json.RawMessage) (ToolResult, error) {
	if t.err != nil {
		return ToolResult{}, t.err
	}
	return ToolResult{Output: t.output, ApprovalRequired: t.approval}, nil
}

func newTestRegistry(t *testing.T, provider Provider, maxSteps int) (*Registry, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	registry := NewExtensionRegistry()
	registry.Register(&Extension{
		ID:   "files",
		Name: "Files",
		Tools: map[string]Tool{
			"list": &fakeTool{
				descriptor: ToolDescriptor{Name: "list", InputSchema: json.RawMessage(`{"type":"object"}`)},
				output:     json.RawMessage(`{"ok":true}`),
			},
		},
	})
	return NewRegistry(RegistryOptions{
		Store:      messages.NewMemoryStore(),
		Bus:        bus,
		Extensions: registry,
		Provider:   provider,
		MaxSteps:   maxSteps,
	}), bus
}

// awaitTerminal waits for a SessionRunCompleted or SessionRunCancelled
// event on sub, failing the test if none arrives within the timeout.
func awaitTerminal(t *testing.T, sub *eventbus.Subscription) models.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type == models.EventSessionRunCompleted || ev.Type == models.EventSessionRunCancelled {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for run to finish")
			return models.Event{}
		}
	}
}

func TestActorTextOnlyRunCompletes(t *testing.T) {
	provider := &fakeProvider{steps: [][]ProviderEvent{
		{
			{Type: ProviderTextStart, PartID: "p1"},
			{Type: ProviderTextDelta, PartID: "p1", Delta: "hello"},
			{Type: ProviderTextEnd, PartID: "p1"},
		},
	}}
	reg, bus := newTestRegistry(t, provider, 8)
	defer reg.Close()

	sub := bus.Subscribe("s1", 0)
	defer sub.Close()

	handle := reg.GetOrCreate("s1")
	accepted, err := handle.SendUserMessage(context.Background(), []models.MessagePart{
		{Type: models.PartText, Text: &models.TextPart{Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("SendUserMessage: %v", err)
	}
	if accepted.RunID == "" {
		t.Fatal("expected a run id")
	}

	final := awaitTerminal(t, sub)
	if final.Type != models.EventSessionRunCompleted {
		t.Fatalf("expected SessionRunCompleted, got %s", final.Type)
	}
}

func TestActorToolCallAndActivateExtensionThenStopsAtMaxSteps(t *testing.T) {
	provider := &fakeProvider{steps: [][]ProviderEvent{
		{
			{Type: ProviderToolCall, PartID: "p1", ToolCallID: "ca1", ToolName: ToolActivateExtension, ToolInput: json.RawMessage(`{"id":"files"}`)},
		},
		{
			{Type: ProviderToolCall, PartID: "p2", ToolCallID: "c1", ToolName: "files_list", ToolInput: json.RawMessage(`{}`)},
		},
	}}
	reg, bus := newTestRegistry(t, provider, 2)
	defer reg.Close()

	sub := bus.Subscribe("s1", 0)
	defer sub.Close()

	handle := reg.GetOrCreate("s1")
	if _, err := handle.SendUserMessage(context.Background(), nil); err != nil {
		t.Fatalf("SendUserMessage: %v", err)
	}

	var sawContextUpdated, sawToolCompleted bool
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			switch ev.Type {
			case models.EventSessionContextUpdated:
				sawContextUpdated = true
			case models.EventSessionPartUpdated:
				if ev.Part != nil && ev.Part.Tool != nil && ev.Part.Tool.ToolName == "files_list" && ev.Part.Tool.State == models.ToolStateCompleted {
					sawToolCompleted = true
				}
			case models.EventSessionRunCompleted:
				if !sawContextUpdated {
					t.Fatal("run completed before activate_extension published SessionContextUpdated")
				}
				if !sawToolCompleted {
					t.Fatal("run completed before the dispatched tool call resolved")
				}
				return
			case models.EventSessionRunCancelled:
				t.Fatalf("expected completion, got cancellation: %s", ev.Reason)
			}
		case <-deadline:
			t.Fatal("timed out waiting for run to finish")
		}
	}
}

func TestSendUserMessageRejectsWhileRunActive(t *testing.T) {
	// A provider that never finishes keeps the run open so a second
	// UserMessage lands while one is still active.
	blocked := make(chan ProviderEvent)
	provider := providerFunc(func(ctx context.Context, _ []ProviderMessage, _ []ToolDescriptor, _ LlmOptions) (<-chan ProviderEvent, error) {
		return blocked, nil
	})
	reg, _ := newTestRegistry(t, provider, 8)
	defer reg.Close()

	handle := reg.GetOrCreate("s1")
	if _, err := handle.SendUserMessage(context.Background(), nil); err != nil {
		t.Fatalf("first SendUserMessage: %v", err)
	}

	_, err := handle.SendUserMessage(context.Background(), nil)
	if err == nil {
		t.Fatal("expected second concurrent SendUserMessage to be rejected")
	}
	if !cocoerr.Is(err, cocoerr.ClassNotReady) {
		t.Fatalf("expected a NotReady error, got %v", err)
	}
	close(blocked)
}

// providerFunc adapts a function literal to the Provider interface for
// tests that need a custom Stream behavior.
type providerFunc func(ctx context.Context, messages []ProviderMessage, tools []ToolDescriptor, opts LlmOptions) (<-chan ProviderEvent, error)

func (f providerFunc) Stream(ctx context.Context, messages []ProviderMessage, tools []ToolDescriptor, opts LlmOptions) (<-chan ProviderEvent, error) {
	return f(ctx, messages, tools, opts)
}

// blockingAsyncTool blocks Execute until release is closed, letting a test
// cancel the owning run while the job is still in flight.
type blockingAsyncTool struct {
	descriptor ToolDescriptor
	release    chan struct{}
	output     json.RawMessage
}

func (t *blockingAsyncTool) Descriptor() ToolDescriptor { return t.descriptor }

func (t *blockingAsyncTool) Execute(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	<-t.release
	return ToolResult{Output: t.output}, nil
}

// TestBackgroundJobCompletesAfterRunCancelled pins the fix for async tool
// jobs (e.g. subagent_run) resolving after the owning run has already been
// cancelled and torn down: the job's Background* event must still publish,
// using the actor-level job record rather than the now-gone runState.
func TestBackgroundJobCompletesAfterRunCancelled(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{steps: [][]ProviderEvent{
		{
			{Type: ProviderToolCall, PartID: "p1", ToolCallID: "ca1", ToolName: ToolActivateExtension, ToolInput: json.RawMessage(`{"id":"jobs"}`)},
		},
		{
			{Type: ProviderToolCall, PartID: "p2", ToolCallID: "c1", ToolName: "jobs_subagent_run", ToolInput: json.RawMessage(`{}`)},
		},
	}}

	bus := eventbus.New()
	registry := NewExtensionRegistry()
	registry.Register(&Extension{
		ID:   "jobs",
		Name: "Jobs",
		Tools: map[string]Tool{
			"subagent_run": &blockingAsyncTool{
				descriptor: ToolDescriptor{Name: "subagent_run", InputSchema: json.RawMessage(`{"type":"object"}`), Async: true},
				release:    release,
				output:     json.RawMessage(`{"done":true}`),
			},
		},
	})
	reg := NewRegistry(RegistryOptions{
		Store:      messages.NewMemoryStore(),
		Bus:        bus,
		Extensions: registry,
		Provider:   provider,
		MaxSteps:   8,
	})
	defer reg.Close()

	sub := bus.Subscribe("s1", 0)
	defer sub.Close()

	handle := reg.GetOrCreate("s1")
	accepted, err := handle.SendUserMessage(context.Background(), nil)
	if err != nil {
		t.Fatalf("SendUserMessage: %v", err)
	}

	// Wait for the job to actually spawn before cancelling, so the actor
	// has recorded it in asyncJobs.
	deadline := time.After(2 * time.Second)
waitSpawned:
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type == models.EventBackgroundJobStarted {
				break waitSpawned
			}
		case <-deadline:
			t.Fatal("timed out waiting for background job to start")
		}
	}

	handle.Cancel(accepted.RunID, "user requested stop")
	cancelled := awaitTerminal(t, sub)
	if cancelled.Type != models.EventSessionRunCancelled {
		t.Fatalf("expected SessionRunCancelled, got %s", cancelled.Type)
	}

	close(release)

	deadline = time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type == models.EventBackgroundJobCompleted {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for BackgroundJobCompleted after run cancellation")
		}
	}
}

func TestCancelRingIdempotentForLateArrivals(t *testing.T) {
	reg, _ := newTestRegistry(t, &fakeProvider{}, 8)
	defer reg.Close()

	handle := reg.GetOrCreate("s1")
	accepted, err := handle.SendUserMessage(context.Background(), nil)
	if err != nil {
		t.Fatalf("SendUserMessage: %v", err)
	}

	handle.Cancel(accepted.RunID, "user requested stop")
	handle.Cancel(accepted.RunID, "user requested stop again")

	if !handle.actor.isCancelled(accepted.RunID) {
		t.Fatal("expected run to be recorded as cancelled")
	}
	if got := handle.actor.cancelReason(accepted.RunID); got == "" {
		t.Fatal("expected a cancel reason to be recorded")
	}
}
