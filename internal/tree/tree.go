// Package tree implements an in-memory, path-addressable JSON tree with push
// subscriptions. It backs both the in-process remote store and the tree server.
//
// Paths are slash-separated segments ("trips/trip_abc/places"). Writing null or
// an empty object deletes a node, and parents left empty are pruned, so an
// absent node and an empty mapping are indistinguishable to readers.
package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalidPath is returned for paths with empty or reserved segments.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidValue is returned when a value is not valid JSON or cannot be stored at the path.
	ErrInvalidValue = errors.New("invalid value")
)

// Tree is safe for concurrent use.
type Tree struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[uint64]*subscription
	nextID uint64
	newKey func() string
}

// Option configures a Tree.
type Option func(*Tree)

// WithKeyGenerator overrides the generator used by Push. Keys must be unique
// and should sort in insertion order.
func WithKeyGenerator(fn func() string) Option {
	return func(t *Tree) { t.newKey = fn }
}

// New creates an empty tree. Push keys default to ULIDs, which sort by creation time.
func New(opts ...Option) *Tree {
	t := &Tree{
		root:   make(map[string]any),
		subs:   make(map[uint64]*subscription),
		newKey: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the JSON value at path, or nil if the node does not exist.
func (t *Tree) Get(path string) (json.RawMessage, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encodeLocked(parts), nil
}

// Set replaces the value at path. A null or empty value deletes the node.
func (t *Tree) Set(path string, value json.RawMessage) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	if len(parts) == 0 && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("%w: root must be an object", ErrInvalidValue)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(parts, v)
	t.notifyLocked(parts)
	return nil
}

// Push stores value under a freshly generated child key of path and returns the key.
func (t *Tree) Push(path string, value json.RawMessage) (string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return "", err
	}
	v, err := decodeValue(value)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.newKey()
	child := append(parts[:len(parts):len(parts)], key)
	t.setLocked(child, v)
	t.notifyLocked(child)
	return key, nil
}

// Delete removes the node at path. Deleting a missing node is not an error.
func (t *Tree) Delete(path string) error {
	return t.Set(path, nil)
}

// Subscribe registers fn for the value at path. fn is called once with the
// current value (nil when absent) and again whenever the value changes because
// of a write at the path, below it, or above it.
//
// Calls for one subscription are made in order on a dedicated goroutine, never
// while the tree is locked. After cancel returns no new call starts, although a
// call already running may still finish.
func (t *Tree) Subscribe(path string, fn func(json.RawMessage)) (cancel func(), err error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(parts, fn)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	sub.last = t.encodeLocked(parts)
	sub.enqueue(sub.last)
	t.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			sub.close()
		})
	}, nil
}

// Subscribers returns the number of active subscriptions.
func (t *Tree) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (t *Tree) lookupLocked(parts []string) any {
	var node any = t.root
	for _, part := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[part]
		if !ok {
			return nil
		}
	}
	return node
}

func (t *Tree) encodeLocked(parts []string) json.RawMessage {
	node := t.lookupLocked(parts)
	if node == nil {
		return nil
	}
	// Values only ever come from decodeValue, so they always re-encode.
	b, _ := json.Marshal(node)
	return b
}

func (t *Tree) setLocked(parts []string, v any) {
	if v == nil {
		t.deleteLocked(parts)
		return
	}
	if len(parts) == 0 {
		t.root = v.(map[string]any)
		return
	}

	m := t.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			// A scalar in the way is replaced by an object.
			child = make(map[string]any)
			m[part] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = v
}

func (t *Tree) deleteLocked(parts []string) {
	if len(parts) == 0 {
		t.root = make(map[string]any)
		return
	}

	chain := make([]map[string]any, 0, len(parts))
	m := t.root
	for _, part := range parts[:len(parts)-1] {
		chain = append(chain, m)
		child, ok := m[part].(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	delete(m, parts[len(parts)-1])

	// Prune parents that became empty.
	for i := len(chain) - 1; i >= 0 && len(m) == 0; i-- {
		delete(chain[i], parts[i])
		m = chain[i]
	}
}

func (t *Tree) notifyLocked(changed []string) {
	for _, sub := range t.subs {
		if !related(sub.path, changed) {
			continue
		}
		raw := t.encodeLocked(sub.path)
		if bytes.Equal(raw, sub.last) {
			continue
		}
		sub.last = raw
		sub.enqueue(raw)
	}
}

// related reports whether a change at b can alter the value observed at a.
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" || strings.ContainsAny(part, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// decodeValue parses raw JSON and strips nulls and empty objects.
// It returns nil for values that would store nothing.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return prune(v), nil
}

func prune(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if p := prune(child); p == nil {
				delete(val, k)
			} else {
				val[k] = p
			}
		}
		if len(val) == 0 {
			return nil
		}
		return val
	case []any:
		// Arrays are stored as objects keyed by index, like the hosted store does.
		m := make(map[string]any, len(val))
		for i, child := range val {
			if p := prune(child); p != nil {
				m[fmt.Sprint(i)] = p
			}
		}
		if len(m) == 0 {
			return nil
		}
		return m
	default:
		return v
	}
}
