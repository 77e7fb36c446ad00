package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qqoqto/travel-planner/internal/tree"
)

// Ensure Local implements Store
var _ Store = (*Local)(nil)

// Local serves the Store interface from an in-process tree.
type Local struct {
	tree *tree.Tree
}

// NewLocal wraps t. Multiple Locals over one tree behave like separate
// clients of the same shared store.
func NewLocal(t *tree.Tree) *Local {
	return &Local{tree: t}
}

// Write replaces the value at path.
func (l *Local) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	return l.tree.Set(path, raw)
}

// Append stores value under a new key of path.
func (l *Local) Append(ctx context.Context, path string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return l.tree.Push(path, raw)
}

// Delete removes the value at path.
func (l *Local) Delete(ctx context.Context, path string) error {
	return l.tree.Delete(path)
}

// Subscribe registers h on the tree until the returned function is called or ctx ends.
func (l *Local) Subscribe(ctx context.Context, path string, h Handler) (Unsubscribe, error) {
	cancel, err := l.tree.Subscribe(path, func(v json.RawMessage) {
		h(Snapshot{Path: path, Value: v}, nil)
	})
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			cancel()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
	return unsubscribe, nil
}
