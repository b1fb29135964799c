// Package store provides storage backends for EstateDesk.
//
// This file implements an in-memory store used in tests and single-process
// deployments without persistence requirements.
package store

import (
	"sort"
	"sync"

	"github.com/estatedesk/estatedesk/internal/models"
)

// InMemoryStore keeps conversation history and user state in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]models.ConversationMessage
	states   map[string]models.UserState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[string][]models.ConversationMessage),
		states:   make(map[string]models.UserState),
	}
}

func (s *InMemoryStore) SaveMessage(msg models.ConversationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	return nil
}

func (s *InMemoryStore) RecentMessages(userID string, maxPairs int) ([]models.ConversationMessage, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	limit := historyLimit(maxPairs)

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[userID]
	msgs := make([]models.ConversationMessage, len(all))
	copy(msgs, all)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *InMemoryStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	copied := state
	return &copied, nil
}

func (s *InMemoryStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
