package session

import (
	"encoding/json"
	"time"

	"github.com/cocommand/cocommand/pkg/models"
)

// mailboxEventType discriminates the sum type accepted on an actor's
// mailbox — the only way anything outside the actor's own goroutine may
// mutate its state.
type mailboxEventType int

const (
	evUserMessage mailboxEventType = iota
	evLlmStreamPart
	evLlmFinished
	evLlmFailed
	evToolImmediateSuccess
	evToolImmediateFailure
	evToolAsyncSpawned
	evToolAsyncCompleted
	evToolAsyncFailed
)

// mailboxEvent is one message delivered to an actor's run loop. Exactly
// the fields relevant to Type are populated.
type mailboxEvent struct {
	Type mailboxEventType

	// UserMessage
	Parts   []models.MessagePart
	Reply   chan<- RunAccepted

	// run-scoped events
	RunID string

	// LlmStreamPart
	Delta ProviderEvent

	// LlmFinished
	FinalParts []models.MessagePart

	// LlmFailed
	Err       error
	Cancelled bool

	// Tool events
	CallID           string
	ToolName         string
	Output           json.RawMessage
	JobID            string
	ApprovalRequired bool
}

// RunAccepted is the synchronous reply to UserMessage: the run has been
// admitted and assigned an id, though the LLM call may not have started
// yet.
type RunAccepted struct {
	RunID      string
	AcceptedAt time.Time
	Err        error
}
