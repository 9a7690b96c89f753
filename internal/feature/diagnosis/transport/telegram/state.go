package telegram

import (
	"context"
	"sync"
)

// ChatState is the view a chat is currently in.
type ChatState string

const (
	StateMainMenu      ChatState = "main_menu"
	StateAwaitingPhoto ChatState = "awaiting_photo"
	StateProcessing    ChatState = "processing"
)

// StateStore keeps the per-chat view state.
// The processing lock is separate from the view state: Set never releases it.
type StateStore interface {
	// Get returns StateProcessing while the lock is held, otherwise the view state.
	Get(ctx context.Context, chatID int64) (ChatState, error)
	Set(ctx context.Context, chatID int64, state ChatState) error
	// BeginProcessing takes the processing lock and reports false when it was already held.
	BeginProcessing(ctx context.Context, chatID int64) (bool, error)
	// EndProcessing releases the processing lock.
	EndProcessing(ctx context.Context, chatID int64) error
}

// MemoryStateStore is a StateStore backed by maps. Unknown chats start in StateMainMenu.
type MemoryStateStore struct {
	mu         sync.Mutex
	states     map[int64]ChatState
	processing map[int64]struct{}
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states:     make(map[int64]ChatState),
		processing: make(map[int64]struct{}),
	}
}

func (s *MemoryStateStore) Get(_ context.Context, chatID int64) (ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processing[chatID]; ok {
		return StateProcessing, nil
	}
	if st, ok := s.states[chatID]; ok {
		return st, nil
	}
	return StateMainMenu, nil
}

func (s *MemoryStateStore) Set(_ context.Context, chatID int64, state ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case StateProcessing:
		s.processing[chatID] = struct{}{}
	case StateMainMenu:
		delete(s.states, chatID)
	default:
		s.states[chatID] = state
	}
	return nil
}

func (s *MemoryStateStore) BeginProcessing(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processing[chatID]; ok {
		return false, nil
	}
	s.processing[chatID] = struct{}{}
	return true, nil
}

func (s *MemoryStateStore) EndProcessing(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processing, chatID)
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
