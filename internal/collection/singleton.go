package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/remote"
)

// Singleton is a live local view of one remote value, such as trip info.
type Singleton[T any] struct {
	path     string
	onUpdate func(*T)

	mu      sync.Mutex
	value   *T
	stopped bool
	unsub   remote.Unsubscribe

	current atomic.Pointer[singletonState[T]]
}

type singletonState[T any] struct {
	value *T
	err   error
}

// SubscribeSingleton starts synchronizing trips/{documentID}/{name}. onUpdate
// receives a copy of the value, or nil while the node is absent, under the same
// rules as Subscribe.
func SubscribeSingleton[T any](ctx context.Context, store remote.Store, documentID, name string, onUpdate func(*T)) (*Singleton[T], error) {
	s := &Singleton[T]{
		path:     models.DocumentPath(documentID, name),
		onUpdate: onUpdate,
	}
	s.current.Store(&singletonState[T]{})

	unsub, err := store.Subscribe(ctx, s.path, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.unsub = unsub
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		unsub()
	}
	return s, nil
}

func (s *Singleton[T]) handle(snap remote.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if err == nil {
		if !snap.Exists() {
			s.value = nil
			s.publishLocked(nil)
			return
		}
		var v T
		if err = snap.Decode(&v); err == nil {
			s.value = &v
			s.publishLocked(nil)
			return
		}
		err = fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	slog.Warn("Singleton update failed, keeping last known state", "path", s.path, "error", err)
	s.publishLocked(err)
}

func (s *Singleton[T]) publishLocked(err error) {
	s.current.Store(&singletonState[T]{value: s.value, err: err})
	if s.onUpdate != nil {
		s.onUpdate(clone(s.value))
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Value returns a copy of the current value, or nil when absent.
func (s *Singleton[T]) Value() *T {
	return clone(s.current.Load().value)
}

// Err returns the failure from the most recent notification, or nil.
func (s *Singleton[T]) Err() error {
	return s.current.Load().err
}

// Stop releases the subscription. After Stop returns, onUpdate is not called again.
func (s *Singleton[T]) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsub := s.unsub
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
