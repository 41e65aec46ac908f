package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Sessions do not survive a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, tokenHash, username string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !expiresAt.After(now) {
		expiresAt = now.Add(defaultTTL)
	}
	s.sessions[tokenHash] = memoryEntry{
		data:      Data{Username: username, CreatedAt: now},
		expiresAt: expiresAt,
	}
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, tokenHash string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[tokenHash]
	if !ok {
		return Data{}, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, tokenHash)
		return Data{}, ErrNotFound
	}
	return entry.data, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
