// Package messages implements the Message Store: append-only message and
// part records keyed by (session_id, message_id) and (message_id,
// part_id), with time-ordered ids so lexicographic key order equals
// creation order. Two backends share the Store interface — an in-memory
// map for tests and small workspaces, and a modernc.org/sqlite-backed
// store for durable persistence.
package messages

import (
	"context"

	"github.com/cocommand/cocommand/pkg/models"
)

// Store is the Message Store contract. Implementations must make
// StoreInfo/StorePart idempotent upserts keyed by id, and List must
// return messages in created order with each message's parts in id
// order (time-ordered UUIDs make id order equal creation order).
type Store interface {
	StoreInfo(ctx context.Context, info models.MessageInfo) error
	StorePart(ctx context.Context, part models.MessagePart) error
	List(ctx context.Context, sessionID string) ([]models.Message, error)
	Get(ctx context.Context, sessionID, messageID string) (models.Message, bool, error)
}
