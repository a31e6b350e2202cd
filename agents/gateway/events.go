/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"chainguard.dev/repopilot/agents/executor/retry"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// EventType names an action transition.
type EventType string

const (
	EventProposed        EventType = "proposed"
	EventApproved        EventType = "approved"
	EventExecuted        EventType = "executed"
	EventExecutionFailed EventType = "execution_failed"
	EventRejected        EventType = "rejected"
)

// Event reports a transition. Action is a snapshot taken after it.
type Event struct {
	Type   EventType
	Action *Action
	Time   time.Time
}

// Listener handles events. A returned error causes redelivery.
type Listener func(ctx context.Context, ev Event) error

type subscriber struct {
	id       uint64
	name     string
	listener Listener
}

// bus fans events out to every subscriber with at-least-once delivery.
type bus struct {
	cfg retry.RetryConfig

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

func (b *bus) subscribe(name string, l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, name: name, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers ev to every subscriber concurrently and waits for all
// of them. Failures are logged and never returned.
func (b *bus) publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	var eg errgroup.Group
	for _, s := range subs {
		eg.Go(func() error {
			ev := Event{Type: ev.Type, Action: ev.Action.Clone(), Time: ev.Time}
			_, err := retry.RetryWithBackoff(ctx, b.cfg, "deliver "+s.name, isRedeliverable, func() (struct{}, error) {
				return struct{}{}, s.listener(ctx, ev)
			})
			if err != nil {
				clog.FromContext(ctx).With("subscriber", s.name).
					With("event", string(ev.Type)).
					With("action_id", ev.Action.ID).
					With("error", err.Error()).
					Error("Event delivery failed")
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func isRedeliverable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
