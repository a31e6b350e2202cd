/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrNotFound is returned for unknown action ids.
	ErrNotFound = errors.New("action not found")
	// ErrStatusConflict is returned by Store.Transition when the action is
	// not in the expected status.
	ErrStatusConflict = errors.New("action status changed")
)

// Store persists actions. Implementations must make Transition atomic.
type Store interface {
	// Create records a new action. The id must be unused.
	Create(ctx context.Context, a *Action) error
	// Get returns the action with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Action, error)
	// List returns actions in creation order, optionally filtered to the
	// given statuses.
	List(ctx context.Context, statuses ...Status) ([]*Action, error)
	// Transition moves the action from one status to another, applying
	// update to the stored copy first. It fails with ErrStatusConflict if
	// the current status is not from.
	Transition(ctx context.Context, id string, from, to Status, update func(*Action)) (*Action, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	order   []string
	actions map[string]*Action
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*Action)}
}

func (s *MemoryStore) Create(_ context.Context, a *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; ok {
		return fmt.Errorf("action %s already exists", a.ID)
	}
	s.actions[a.ID] = a.Clone()
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, statuses ...Status) ([]*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Action, 0, len(s.order))
	for _, id := range s.order {
		a := s.actions[id]
		if len(statuses) > 0 && !slices.Contains(statuses, a.Status) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status, update func(*Action)) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if a.Status != from {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrStatusConflict, id, a.Status, from)
	}
	next := a.Clone()
	if update != nil {
		update(next)
	}
	next.Status = to
	s.actions[id] = next
	return next.Clone(), nil
}
