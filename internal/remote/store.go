// Package remote defines the capability surface of the shared tree store that
// the synchronization core consumes, plus adapters that implement it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
)

// Snapshot is the full value of a path as delivered by a subscription.
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

// Exists reports whether the path held a value.
func (s Snapshot) Exists() bool {
	v := bytes.TrimSpace(s.Value)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	return json.Unmarshal(s.Value, v)
}

// Handler receives subscription notifications. A non-nil error reports a
// read or permission failure; the snapshot is then zero.
type Handler func(Snapshot, error)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store defines the remote tree operations used by the core.
// Every write is an unconditional last-write-wins overwrite at its path.
type Store interface {
	// Write replaces the value at path.
	Write(ctx context.Context, path string, value any) error

	// Append stores value under a new store-generated key of path and returns the key.
	Append(ctx context.Context, path string, value any) (string, error)

	// Delete removes the value at path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Subscribe calls h with the current value of path and again after every
	// change to the path or its descendants, in emission order. ctx bounds the
	// lifetime of the subscription.
	Subscribe(ctx context.Context, path string, h Handler) (Unsubscribe, error)
}
