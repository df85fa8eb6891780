package messages

import "github.com/google/uuid"

// NewID returns a time-ordered id suitable for MessageInfo.ID, MessagePart.ID,
// or a run id: UUIDv7's layout puts a millisecond timestamp in the high
// bits, so lexicographic string order equals creation order. Falls back to
// a random v4 id on the rare clock-read failure rather than returning an
// error callers would have no good way to handle.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
