package messages

import (
	"context"
	"sort"
	"sync"

	"github.com/cocommand/cocommand/pkg/models"
)

// MemoryStore is an in-process Store backed by plain maps, guarded by a
// single mutex. Suitable for tests and for a workspace that doesn't need
// persistence across daemon restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	infos    map[string]models.MessageInfo            // message_id -> info
	parts    map[string]map[string]models.MessagePart // message_id -> part_id -> part
	bySession map[string][]string                      // session_id -> message_id, insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		infos:     make(map[string]models.MessageInfo),
		parts:     make(map[string]map[string]models.MessagePart),
		bySession: make(map[string][]string),
	}
}

func (s *MemoryStore) StoreInfo(_ context.Context, info models.MessageInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.infos[info.ID]; !exists {
		s.bySession[info.SessionID] = append(s.bySession[info.SessionID], info.ID)
	}
	s.infos[info.ID] = info
	return nil
}

func (s *MemoryStore) StorePart(_ context.Context, part models.MessagePart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.parts[part.MessageID]
	if !ok {
		bucket = make(map[string]models.MessagePart)
		s.parts[part.MessageID] = bucket
	}
	bucket[part.ID] = part
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := append([]string(nil), s.bySession[sessionID]...)
	sort.Strings(ids) // time-ordered UUIDs: lexicographic order is creation order

	messages := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		info, ok := s.infos[id]
		if !ok {
			continue
		}
		messages = append(messages, models.Message{Info: info, Parts: s.orderedParts(id)})
	}
	return messages, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID, messageID string) (models.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.infos[messageID]
	if !ok || info.SessionID != sessionID {
		return models.Message{}, false, nil
	}
	return models.Message{Info: info, Parts: s.orderedParts(messageID)}, true, nil
}

// orderedParts must be called with s.mu already held.
func (s *MemoryStore) orderedParts(messageID string) []models.MessagePart {
	bucket := s.parts[messageID]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]models.MessagePart, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, bucket[id])
	}
	return parts
}
