package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cocommand/cocommand/internal/messages"
	"github.com/cocommand/cocommand/pkg/models"
)

// dispatchToolCall handles one ProviderToolCall delta: persist the
// Pending tool part, then either run it synchronously (resolve + execute
// + schema-validate) or route it through the async-job path. A call
// that fails to resolve or validate never reaches activeToolCalls, so
// maybeAdvance treats it as already settled.
func (a *actor) dispatchToolCall(rs *runState, delta ProviderEvent) {
	now := time.Now()
	partID := delta.PartID
	if partID == "" {
		partID = messages.NewID()
	}
	toolName := delta.ToolName
	callID := delta.ToolCallID
	rs.anyToolCallsThisStep = true

	if toolName == ToolActivateExtension {
		a.handleActivateExtensionCall(rs, partID, callID, delta.ToolInput)
		return
	}

	a.persistPart(rs, models.MessagePart{
		ID: partID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now,
		Tool: &models.ToolPart{CallID: callID, ToolName: toolName, State: models.ToolStatePending, Input: delta.ToolInput},
	})

	desc, ok := rs.toolDescriptors[toolName]
	if !ok {
		a.finishToolCallWithError(rs, partID, callID, toolName, "unknown tool: "+toolName)
		return
	}
	if err := a.validateToolInput(desc, delta.ToolInput); err != nil {
		a.finishToolCallWithError(rs, partID, callID, toolName, err.Error())
		return
	}

	active := append([]string(nil), a.activeExtensions...)
	tool, ok := a.extensions.resolve(toolName, active)
	if !ok {
		a.finishToolCallWithError(rs, partID, callID, toolName, "tool not resolvable: "+toolName)
		return
	}

	async := asyncToolNames[toolName] || desc.Async
	rs.activeToolCalls[callID] = &toolCallState{CallID: callID, PartID: partID, ToolName: toolName, Async: async, State: models.ToolStatePending}

	go a.executeTool(rs.ctx, rs.runID, callID, tool, delta.ToolInput, async)
}

// finishToolCallWithError writes a terminal Error tool part directly,
// without ever entering activeToolCalls — used for calls this actor
// rejects before dispatch (unknown tool, schema mismatch).
func (a *actor) finishToolCallWithError(rs *runState, partID, callID, toolName, message string) {
	now := time.Now()
	a.persistPart(rs, models.MessagePart{
		ID: partID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now,
		Tool: &models.ToolPart{CallID: callID, ToolName: toolName, State: models.ToolStateError, Error: message, EndTime: &now},
	})
}

// handleActivateExtensionCall is the one tool the actor itself intercepts:
// it mutates the session's active extension set and publishes
// SessionContextUpdated, instead of routing through Tool.Execute.
func (a *actor) handleActivateExtensionCall(rs *runState, partID, callID string, input json.RawMessage) {
	var in controlToolInput
	if err := json.Unmarshal(input, &in); err != nil {
		a.finishToolCallWithError(rs, partID, callID, ToolActivateExtension, err.Error())
		return
	}
	ext, ok := a.extensions.Get(in.ID)
	if !ok {
		a.finishToolCallWithError(rs, partID, callID, ToolActivateExtension, "unknown extension: "+in.ID)
		return
	}

	already := false
	for _, id := range a.activeExtensions {
		if id == ext.ID {
			already = true
			break
		}
	}
	if !already {
		a.activeExtensions = append(a.activeExtensions, ext.ID)
	}
	rs.toolDescriptors = a.extensions.BuildCatalogue(a.activeExtensions)

	now := time.Now()
	out, _ := json.Marshal(summarize(ext))
	a.persistPart(rs, models.MessagePart{
		ID: partID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now,
		Tool: &models.ToolPart{CallID: callID, ToolName: ToolActivateExtension, State: models.ToolStateCompleted, Output: string(out), EndTime: &now},
	})
	a.publish(models.Event{
		Type: models.EventSessionContextUpdated, Time: now, RunID: rs.runID,
		ActiveExtensions: append([]string(nil), a.activeExtensions...),
	})
}

// executeTool runs off the run() goroutine under the tool or async-job
// semaphore and reports the outcome back through the mailbox.
func (a *actor) executeTool(ctx context.Context, runID, callID string, tool Tool, input json.RawMessage, async bool) {
	sem := a.toolSem
	if async {
		sem = a.asyncSem
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		a.sendMailbox(mailboxEvent{Type: evToolImmediateFailure, RunID: runID, CallID: callID, Err: err})
		return
	}
	defer sem.Release(1)

	if async {
		jobID := messages.NewID()
		a.sendMailbox(mailboxEvent{Type: evToolAsyncSpawned, RunID: runID, CallID: callID, ToolName: tool.Descriptor().Name, JobID: jobID})
		result, err := tool.Execute(ctx, input)
		switch {
		case err != nil:
			a.sendMailbox(mailboxEvent{Type: evToolAsyncFailed, RunID: runID, JobID: jobID, Err: err})
		case result.Err != nil:
			a.sendMailbox(mailboxEvent{Type: evToolAsyncFailed, RunID: runID, JobID: jobID, Err: fmt.Errorf("%s", string(result.Err))})
		default:
			a.sendMailbox(mailboxEvent{Type: evToolAsyncCompleted, RunID: runID, JobID: jobID, Output: result.Output, ApprovalRequired: result.ApprovalRequired})
		}
		return
	}

	result, err := tool.Execute(ctx, input)
	switch {
	case err != nil:
		a.sendMailbox(mailboxEvent{Type: evToolImmediateFailure, RunID: runID, CallID: callID, Err: err})
	case result.Err != nil:
		a.sendMailbox(mailboxEvent{Type: evToolImmediateFailure, RunID: runID, CallID: callID, Err: fmt.Errorf("%s", string(result.Err))})
	default:
		a.sendMailbox(mailboxEvent{Type: evToolImmediateSuccess, RunID: runID, CallID: callID, Output: result.Output, ApprovalRequired: result.ApprovalRequired})
	}
}

func (a *actor) handleToolImmediateResult(ev mailboxEvent, success bool) {
	rs := a.current
	if rs == nil || rs.runID != ev.RunID || a.isCancelled(ev.RunID) {
		return
	}
	tc, ok := rs.activeToolCalls[ev.CallID]
	if !ok {
		return
	}
	delete(rs.activeToolCalls, ev.CallID)

	now := time.Now()
	tp := &models.ToolPart{CallID: tc.CallID, ToolName: tc.ToolName, EndTime: &now}
	if success {
		a.advanceToolState(tc, models.ToolStateCompleted)
		tp.State = models.ToolStateCompleted
		tp.Output = string(ev.Output)
		if ev.ApprovalRequired {
			rs.approvalRequired = true
		}
	} else {
		a.advanceToolState(tc, models.ToolStateError)
		tp.State = models.ToolStateError
		tp.Error = errString(ev.Err)
	}
	a.persistPart(rs, models.MessagePart{
		ID: tc.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now, Tool: tp,
	})
	a.maybeAdvance(rs)
}

// advanceToolState checks tc's recorded state transition against the tool
// lifecycle's allowed edges and logs when a step violates it; the part is
// still persisted either way since the provider/tool result already
// happened, but a logged violation points at a dispatch bug.
func (a *actor) advanceToolState(tc *toolCallState, to models.ToolState) {
	if tc.State != "" && !models.CanTransition(tc.State, to) {
		a.log.Warn("invalid tool state transition", "call_id", tc.CallID, "tool", tc.ToolName, "from", tc.State, "to", to)
	}
	tc.State = to
}

func (a *actor) handleToolAsyncSpawned(ev mailboxEvent) {
	rs := a.current
	if rs == nil || rs.runID != ev.RunID || a.isCancelled(ev.RunID) {
		return
	}
	tc, ok := rs.activeToolCalls[ev.CallID]
	if !ok {
		return
	}
	tc.JobID = ev.JobID
	a.advanceToolState(tc, models.ToolStateRunning)
	a.asyncJobs[ev.JobID] = &asyncJobState{
		RunID: rs.runID, CallID: tc.CallID, PartID: tc.PartID,
		MessageID: rs.assistantMessageID, ToolName: tc.ToolName,
	}

	now := time.Now()
	a.persistPart(rs, models.MessagePart{
		ID: tc.PartID, MessageID: rs.assistantMessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now,
		Tool: &models.ToolPart{
			CallID: tc.CallID, ToolName: tc.ToolName, State: models.ToolStateRunning,
			StartedAt: &now, Metadata: map[string]any{"job_id": ev.JobID, "status": "running"},
		},
	})
	a.publish(models.Event{Type: models.EventBackgroundJobStarted, Time: now, RunID: rs.runID, JobID: ev.JobID})
}

// handleToolAsyncResult reconciles a job_id back to the actor-level job
// record handleToolAsyncSpawned registered. Background* events publish
// unconditionally from that record — regardless of whether the owning run
// is still a.current, has since been cancelled, or has already finished —
// since a background job is expected to run to completion independent of
// the run that spawned it. The tool part is updated (and, if the owning
// run is still active and uncancelled, maybeAdvance is invoked) whenever
// there's a runState left to update; otherwise the final part is still
// persisted directly against the job's original run/message id.
func (a *actor) handleToolAsyncResult(ev mailboxEvent, success bool) {
	job, ok := a.asyncJobs[ev.JobID]
	if !ok {
		return
	}
	delete(a.asyncJobs, ev.JobID)

	now := time.Now()
	if success {
		a.publish(models.Event{Type: models.EventBackgroundJobCompleted, Time: now, RunID: job.RunID, JobID: ev.JobID})
	} else {
		a.publish(models.Event{Type: models.EventBackgroundJobFailed, Time: now, RunID: job.RunID, JobID: ev.JobID, Reason: errString(ev.Err)})
	}

	tp := &models.ToolPart{CallID: job.CallID, ToolName: job.ToolName, EndTime: &now}
	if success {
		tp.State = models.ToolStateCompleted
		tp.Output = string(ev.Output)
	} else {
		tp.State = models.ToolStateError
		tp.Error = errString(ev.Err)
	}
	part := models.MessagePart{
		ID: job.PartID, MessageID: job.MessageID, SessionID: a.sessionID,
		Type: models.PartTool, CreatedAt: now, Tool: tp,
	}

	rs := a.current
	sameRun := rs != nil && rs.runID == job.RunID
	if !sameRun {
		a.persistPartForRun(job.RunID, part)
		return
	}

	tc, ok := rs.activeToolCalls[job.CallID]
	if ok {
		delete(rs.activeToolCalls, job.CallID)
		if success {
			a.advanceToolState(tc, models.ToolStateCompleted)
		} else {
			a.advanceToolState(tc, models.ToolStateError)
		}
	}
	if a.isCancelled(job.RunID) {
		a.persistPartForRun(job.RunID, part)
		return
	}
	if success && ev.ApprovalRequired {
		rs.approvalRequired = true
	}
	a.persistPart(rs, part)
	a.maybeAdvance(rs)
}
