// Package history keeps per-session conversation turns.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mhassist/internal/config"
	"mhassist/internal/llm"
)

// Store persists chat turns by session id.
type Store interface {
	Append(ctx context.Context, sessionID string, msgs ...llm.Message) error
	// Messages returns at most limit of the latest turns, oldest first.
	// limit <= 0 means all of them.
	Messages(ctx context.Context, sessionID string, limit int) ([]llm.Message, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

func NewSessionID() string {
	return uuid.NewString()
}

// Open builds the store selected by cfg.Type.
func Open(cfg config.HistoryConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown history type %q", cfg.Type)
	}
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]llm.Message)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sessions[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]llm.Message(nil), all...), nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
