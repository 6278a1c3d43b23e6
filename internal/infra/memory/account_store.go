package memory

import (
	"context"
	"sync"

	"tracing-quiz-service/internal/domain"
)

// AccountStore is an in-memory account backend for the account API.
type AccountStore struct {
	mu     sync.Mutex
	users  map[string]domain.UserRecord
	values map[string]map[string]string
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		users:  make(map[string]domain.UserRecord),
		values: make(map[string]map[string]string),
	}
}

// User returns the record of id, creating an empty one on first access.
func (s *AccountStore) User(_ context.Context, id string) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocked(id), nil
}

func (s *AccountStore) PatchUser(_ context.Context, id string, patch domain.UserPatch) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.userLocked(id)
	stars, err := patch.ApplyStars(rec.StarCount)
	if err != nil {
		return rec, err
	}
	rec.StarCount = stars
	if patch.CurrentAvatarBorderID != nil {
		border := *patch.CurrentAvatarBorderID
		rec.CurrentAvatarBorderID = &border
	}
	s.users[id] = rec
	return rec, nil
}

func (s *AccountStore) Value(_ context.Context, id, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[id][key]
	return value, ok, nil
}

func (s *AccountStore) SetValue(_ context.Context, id, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(id)
	if s.values[id] == nil {
		s.values[id] = make(map[string]string)
	}
	s.values[id][key] = value
	return nil
}

func (s *AccountStore) userLocked(id string) domain.UserRecord {
	rec, ok := s.users[id]
	if !ok {
		rec = domain.UserRecord{ID: id}
		s.users[id] = rec
	}
	return rec
}
