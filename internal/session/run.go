package session

import (
	"context"
	"errors"
	"time"

	"github.com/cocommand/cocommand/internal/cocoerr"
	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/pkg/models"
)

// toolCallState tracks one in-flight tool call for the duration of the
// current run step.
type toolCallState struct {
	CallID   string
	PartID   string
	ToolName string
	Async    bool
	JobID    string
	State    models.ToolState
}

// runState is a session's single active run. Only the run() goroutine
// ever reads or writes it.
type runState struct {
	runID               string
	assistantMessageID  string
	assistantCreatedAt  time.Time
	ctx                 context.Context
	toolDescriptors     map[string]ToolDescriptor
	activeToolCalls     map[string]*toolCallState
	parts               map[string]models.MessagePart
	llmFinished         bool
	approvalRequired    bool
	anyToolCallsThisStep bool
	stepCount           int
	openTextPartID      string
	openReasoningPartID string
}

// handleUserMessage starts a new run. A session processes one run at a
// time: a user message arriving while a run is active is rejected rather
// than queued, since nothing in this actor model orders a second run's
// side effects against the first's in-flight tool calls.
func (a *actor) handleUserMessage(ev mailboxEvent) {
	if a.current != nil {
		if ev.Reply != nil {
			ev.Reply <- RunAccepted{Err: cocoerr.NotReady("a run is already active for this session")}
		}
		return
	}

	ctx := context.Background()
	now := time.Now()

	userMessageID := messages.NewID()
	if err := a.store.StoreInfo(ctx, models.MessageInfo{
		ID: userMessageID, SessionID: a.sessionID, Role: models.RoleUser,
		CreatedAt: now, CompletedAt: &now,
	}); err != nil {
		a.log.Error("store user message", "err", err)
	}
	for _, p := range ev.Parts {
		p.MessageID = userMessageID
		p.SessionID = a.sessionID
		if p.ID == "" {
			p.ID = messages.NewID()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if err := a.store.StorePart(ctx, p); err != nil {
			a.log.Error("store user part", "err", err)
		}
	}

	runID := messages.NewID()
	a.publish(models.Event{Type: models.EventSessionMessageStarted, Time: now, RunID: runID, MessageID: userMessageID})

	assistantID := messages.NewID()
	if err := a.store.StoreInfo(ctx, models.MessageInfo{
		ID: assistantID, SessionID: a.sessionID, Role: models.RoleAssistant, CreatedAt: now,
	}); err != nil {
		a.log.Error("store assistant shell", "err", err)
	}

	rs := &runState{
		runID:              runID,
		assistantMessageID: assistantID,
		assistantCreatedAt: now,
		activeToolCalls:    make(map[string]*toolCallState),
		parts:              make(map[string]models.MessagePart),
	}
	a.current = rs

	if ev.Reply != nil {
		ev.Reply <- RunAccepted{RunID: runID, AcceptedAt: now}
	}

	a.startStep(rs)
}

// startStep begins one LLM turn: rebuild the tool catalogue (it may have
// grown since the last step via activate_extension), fetch the session's
// history so far, and hand it to the provider.
func (a *actor) startStep(rs *runState) {
	rs.stepCount++
	rs.llmFinished = false
	rs.anyToolCallsThisStep = false

	rs.toolDescriptors = a.extensions.BuildCatalogue(a.activeExtensions)
	tools := make([]ToolDescriptor, 0, len(rs.toolDescriptors))
	for _, d := range rs.toolDescriptors {
		tools = append(tools, d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.ctx = ctx
	a.registerRunCancel(rs.runID, cancel)

	history, err := a.store.List(context.Background(), a.sessionID)
	if err != nil {
		a.log.Error("list session history", "err", err)
		history = nil
	}

	go a.callLlm(ctx, rs.runID, toProviderMessages(history), tools)
}

func toProviderMessages(history []models.Message) []ProviderMessage {
	out := make([]ProviderMessage, 0, len(history))
	for _, m := range history {
		out = append(out, ProviderMessage{Role: m.Info.Role, Parts: m.Parts})
	}
	return out
}

// callLlm runs off the run() goroutine: it only talks to the Provider and
// forwards raw events back through the mailbox, so it never touches
// runState directly.
func (a *actor) callLlm(ctx context.Context, runID string, history []ProviderMessage, tools []ToolDescriptor) {
	if err := a.llmSem.Acquire(ctx, 1); err != nil {
		a.sendMailbox(mailboxEvent{Type: evLlmFailed, RunID: runID, Err: err, Cancelled: errors.Is(err, context.Canceled)})
		return
	}
	defer a.llmSem.Release(1)

	opts := LlmOptions{
		MaxSteps:        a.maxSteps,
		Temperature:     a.temperature,
		MaxOutputTokens: a.maxOutputTokens,
		SystemPrompt:    a.systemPrompt,
		Abort:           ctx.Done(),
	}
	events, err := a.provider.Stream(ctx, history, tools, opts)
	if err != nil {
		a.sendMailbox(mailboxEvent{Type: evLlmFailed, RunID: runID, Err: err, Cancelled: errors.Is(ctx.Err(), context.Canceled)})
		return
	}
	for ev := range events {
		switch ev.Type {
		case ProviderFinish:
			a.sendMailbox(mailboxEvent{Type: evLlmFinished, RunID: runID})
		case ProviderError:
			a.sendMailbox(mailboxEvent{Type: evLlmFailed, RunID: runID, Err: ev.Err, Cancelled: ev.Cancelled})
		default:
			a.sendMailbox(mailboxEvent{Type: evLlmStreamPart, RunID: runID, Delta: ev})
		}
	}
}

// persistPart upserts part in the Message Store, caches it on rs for
// later delta appends, and publishes SessionPartUpdated.
func (a *actor) persistPart(rs *runState, part models.MessagePart) {
	a.persistPartForRun(rs.runID, part)
	rs.parts[part.ID] = part
}

// persistPartForRun stores part and publishes SessionPartUpdated without
// touching any runState — used when a part's owning run has already
// finished (e.g. an async tool job resolving after cancellation or after
// finishRun), so there is no live *runState left to update.
func (a *actor) persistPartForRun(runID string, part models.MessagePart) {
	if err := a.store.StorePart(context.Background(), part); err != nil {
		a.log.Error("store part", "err", err, "part_id", part.ID)
	}
	cp := part
	a.publish(models.Event{
		Type: models.EventSessionPartUpdated, Time: time.Now(),
		RunID: runID, MessageID: part.MessageID, PartID: part.ID, Part: &cp,
	})
}

func (a *actor) handleLlmStreamPart(ev mailboxEvent) {
	rs := a.current
	if rs == nil || rs.runID != ev.RunID || a.isCancelled(ev.RunID) {
		return
	}
	delta := ev.Delta
	now := time.Now()

	switch delta.Type {
	case ProviderTextStart:
		rs.openTextPartID = delta.PartID
		a.persistPart(rs, models.MessagePart{
			ID: delta.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
			Type: models.PartText, CreatedAt: now, Text: &models.TextPart{},
		})
	case ProviderTextDelta:
		part := rs.parts[delta.PartID]
		if part.ID == "" {
			part = models.MessagePart{ID: delta.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID, Type: models.PartText, CreatedAt: now}
		}
		if part.Text == nil {
			part.Text = &models.TextPart{}
		}
		part.Text.Text += delta.Delta
		a.persistPart(rs, part)
	case ProviderTextEnd:
		rs.openTextPartID = ""
	case ProviderReasoningStart:
		rs.openReasoningPartID = delta.PartID
		a.persistPart(rs, models.MessagePart{
			ID: delta.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
			Type: models.PartReasoning, CreatedAt: now, Reasoning: &models.TextPart{},
		})
	case ProviderReasoningDelta:
		part := rs.parts[delta.PartID]
		if part.ID == "" {
			part = models.MessagePart{ID: delta.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID, Type: models.PartReasoning, CreatedAt: now}
		}
		if part.Reasoning == nil {
			part.Reasoning = &models.TextPart{}
		}
		part.Reasoning.Text += delta.Delta
		a.persistPart(rs, part)
	case ProviderReasoningEnd:
		rs.openReasoningPartID = ""
	case ProviderToolCall:
		a.dispatchToolCall(rs, delta)
	case ProviderFile:
		a.persistPart(rs, models.MessagePart{
			ID: delta.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
			Type: models.PartFile, CreatedAt: now, File: delta.File,
		})
	}
}

func (a *actor) handleLlmFinished(ev mailboxEvent) {
	rs := a.current
	if rs == nil || rs.runID != ev.RunID || a.isCancelled(ev.RunID) {
		return
	}
	rs.llmFinished = true
	a.maybeAdvance(rs)
}

func (a *actor) handleLlmFailed(ev mailboxEvent) {
	rs := a.current
	if rs == nil || rs.runID != ev.RunID {
		return
	}
	now := time.Now()
	if ev.Cancelled || a.isCancelled(ev.RunID) {
		reason := errString(ev.Err)
		if reason == "" {
			reason = a.cancelReason(rs.runID)
		}
		a.publish(models.Event{Type: models.EventSessionRunCancelled, Time: now, RunID: rs.runID, Reason: reason})
		a.finishRun(rs)
		return
	}
	a.persistPart(rs, models.MessagePart{
		ID: messages.NewID(), MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now,
		Tool: &models.ToolPart{ToolName: "llm", State: models.ToolStateError, Error: errString(ev.Err)},
	})
	a.publish(models.Event{Type: models.EventSessionRunCompleted, Time: now, RunID: rs.runID})
	a.finishRun(rs)
}

// maybeAdvance is called whenever a tool call resolves or the stream
// finishes. It closes the run once the LLM is done and nothing is
// in-flight, unless this step dispatched tool calls and the run hasn't
// hit a stop condition yet — in which case it starts another step with
// the tool results folded into history.
func (a *actor) maybeAdvance(rs *runState) {
	if len(rs.activeToolCalls) > 0 {
		return
	}
	if !rs.llmFinished {
		return
	}
	if !rs.anyToolCallsThisStep || rs.approvalRequired || rs.stepCount >= a.maxSteps {
		a.publish(models.Event{Type: models.EventSessionRunCompleted, Time: time.Now(), RunID: rs.runID})
		a.finishRun(rs)
		return
	}
	a.startStep(rs)
}

func (a *actor) finishRun(rs *runState) {
	now := time.Now()
	if err := a.store.StoreInfo(context.Background(), models.MessageInfo{
		ID: rs.assistantMessageID, SessionID: a.sessionID, Role: models.RoleAssistant,
		CreatedAt: rs.assistantCreatedAt, CompletedAt: &now,
	}); err != nil {
		a.log.Error("complete assistant message", "err", err)
	}
	a.unregisterRunCancel(rs.runID)
	a.forgetCancelReason(rs.runID)
	a.current = nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
