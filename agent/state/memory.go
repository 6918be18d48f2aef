package state

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps transcripts in process memory. Entries are stored
// encoded so callers never share message pointers with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: map[string]memoryEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (*Transcript, error) {
	key, err := redisKey(DefaultKeyPrefix, threadID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrStateNotFound
	}
	return decodeTranscript(entry.payload)
}

func (s *MemoryStore) Save(_ context.Context, t *Transcript) error {
	payload, err := encodeTranscript(t)
	if err != nil {
		return err
	}
	key, err := redisKey(DefaultKeyPrefix, t.ThreadID)
	if err != nil {
		return err
	}

	entry := memoryEntry{payload: payload}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	key, err := redisKey(DefaultKeyPrefix, threadID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
