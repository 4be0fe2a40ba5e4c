package config

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory settings store. Persona-scoped lookups
// fall back to the global scope on a miss.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]map[string]any // scope -> key -> value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]map[string]any),
	}
}

func (s *MemoryStore) GetSetting(_ context.Context, key, scope string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := s.settings[scope]; ok {
		if value, ok := scoped[key]; ok {
			return value, nil
		}
	}

	if scope != GlobalScope {
		if global, ok := s.settings[GlobalScope]; ok {
			if value, ok := global[key]; ok {
				return value, nil
			}
		}
	}

	return nil, ErrSettingNotFound
}

func (s *MemoryStore) SetSetting(_ context.Context, key, scope string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scoped, ok := s.settings[scope]
	if !ok {
		scoped = make(map[string]any)
		s.settings[scope] = scoped
	}

	scoped[key] = value

	return nil
}
