// Package collection keeps local views of remote document collections.
//
// A Collection subscribes to one keyed mapping (places, expenses, ...) and
// republishes it as an ordered slice on every remote change. A Singleton does
// the same for a single value (trip info). Both hold the last good value when
// the remote store reports a failure.
package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/remote"
)

// ErrMalformedSnapshot is recorded when a snapshot is not a JSON object.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Entity is implemented by pointers to records that take their identity from
// the remote key.
type Entity[T any] interface {
	*T
	SetID(id string)
}

// Option configures a Collection.
type Option[T any] func(*options[T])

type options[T any] struct {
	validate func(T) error
}

// WithValidator excludes entries for which validate returns an error.
// Excluded entries are logged, not surfaced.
func WithValidator[T any](validate func(T) error) Option[T] {
	return func(o *options[T]) { o.validate = validate }
}

// Collection is a live, ordered local view of one remote collection.
type Collection[T any, P Entity[T]] struct {
	path     string
	validate func(T) error
	onUpdate func([]T)

	// mu serializes notifications and Stop.
	mu      sync.Mutex
	items   []T
	stopped bool
	unsub   remote.Unsubscribe

	current atomic.Pointer[state[T]]
}

// state is what readers see; it is replaced, never modified.
type state[T any] struct {
	items []T
	err   error
}

// Subscribe starts synchronizing trips/{documentID}/{name}. onUpdate receives
// the full current sequence after every notification, synchronously inside
// the store's callback and never concurrently with itself. onUpdate may call
// Items and Err but must not call Stop on the same Collection.
//
// Entries appear in the order the store enumerated the keys; callers needing a
// particular order must sort.
func Subscribe[T any, P Entity[T]](ctx context.Context, store remote.Store, documentID, name string, onUpdate func([]T), opts ...Option[T]) (*Collection[T, P], error) {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collection[T, P]{
		path:     models.DocumentPath(documentID, name),
		validate: o.validate,
		onUpdate: onUpdate,
		items:    []T{},
	}
	c.current.Store(&state[T]{items: c.items})

	unsub, err := store.Subscribe(ctx, c.path, c.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.unsub = unsub
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		unsub()
	}
	return c, nil
}

func (c *Collection[T, P]) handle(snap remote.Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if err == nil {
		var items []T
		items, err = decodeEntries[T, P](c.path, snap, c.validate)
		if err == nil {
			c.items = items
			c.publishLocked(nil)
			return
		}
	}

	slog.Warn("Collection update failed, keeping last known state",
		"path", c.path,
		"items", len(c.items),
		"error", err,
	)
	c.publishLocked(err)
}

func (c *Collection[T, P]) publishLocked(err error) {
	c.current.Store(&state[T]{items: c.items, err: err})
	if c.onUpdate != nil {
		c.onUpdate(slices.Clone(c.items))
	}
}

// Items returns a copy of the current sequence.
func (c *Collection[T, P]) Items() []T {
	return slices.Clone(c.current.Load().items)
}

// Err returns the failure from the most recent notification, or nil if it succeeded.
func (c *Collection[T, P]) Err() error {
	return c.current.Load().err
}

// Path returns the remote path being synchronized.
func (c *Collection[T, P]) Path() string {
	return c.path
}

// Stop releases the subscription. After Stop returns, onUpdate is not called again.
func (c *Collection[T, P]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	unsub := c.unsub
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// decodeEntries turns a keyed mapping into a slice, preserving key order.
func decodeEntries[T any, P Entity[T]](path string, snap remote.Snapshot, validate func(T) error) ([]T, error) {
	if !snap.Exists() {
		return []T{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(snap.Value))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object at %s", ErrMalformedSnapshot, path)
	}

	items := []T{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		// Inside an object the decoder only yields string keys.
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}

		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Warn("Skipping undecodable entry", "path", path, "key", key, "error", err)
			continue
		}
		P(&item).SetID(key)

		if validate != nil {
			if err := validate(item); err != nil {
				slog.Warn("Skipping invalid entry", "path", path, "key", key, "error", err)
				continue
			}
		}
		items = append(items, item)
	}
	return items, nil
}
