// Package identity resolves the local participant's identity: a stable device
// participant ID, the active document ID, and the display name. It is the only
// place that touches local durable storage.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/share"
)

// ErrEmptyDisplayName is returned when a display name is empty after trimming.
var ErrEmptyDisplayName = errors.New("display name must not be empty")

// Local storage keys.
const (
	ParticipantKey = "travelUserId"
	DocumentKey    = "currentTripId"
	DisplayNameKey = "travelUserName"
)

// Generated ID prefixes.
const (
	participantPrefix = "user_"
	documentPrefix    = "trip_"
	suffixLength      = 9
)

// Storage is local durable key-value storage holding plain strings.
type Storage interface {
	// Lookup returns the stored value; ok is false if the key was never saved.
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
}

// Resolver derives and persists identity values.
type Resolver struct {
	store  Storage
	tokens *share.Signer
	suffix func(n int) string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithShareTokens lets DocumentID accept signed share tokens as references.
func WithShareTokens(s *share.Signer) Option {
	return func(r *Resolver) { r.tokens = s }
}

// WithSuffixGenerator overrides the random suffix used for new IDs.
func WithSuffixGenerator(fn func(n int) string) Option {
	return func(r *Resolver) { r.suffix = fn }
}

// NewResolver creates a Resolver over store.
func NewResolver(store Storage, opts ...Option) *Resolver {
	r := &Resolver{store: store, suffix: randomBase36}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParticipantID returns the persisted participant ID, generating and saving
// one on first use.
func (r *Resolver) ParticipantID(ctx context.Context) (string, error) {
	id, ok, err := r.store.Lookup(ctx, ParticipantKey)
	if err != nil {
		return "", fmt.Errorf("failed to read participant id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = participantPrefix + r.suffix(suffixLength)
	if err := r.store.Save(ctx, ParticipantKey, id); err != nil {
		return "", fmt.Errorf("failed to save participant id: %w", err)
	}
	slog.Info("Generated participant id", "participant_id", id)
	return id, nil
}

// DocumentID picks the active document. A document named by ref (a share
// link, bare query, or share token) wins and becomes the persisted document;
// otherwise the last persisted document is used; otherwise a new one is
// generated and persisted.
func (r *Resolver) DocumentID(ctx context.Context, ref string) (string, error) {
	if id, ok := r.fromReference(ref); ok {
		if err := r.store.Save(ctx, DocumentKey, id); err != nil {
			return "", fmt.Errorf("failed to save document id: %w", err)
		}
		return id, nil
	}

	id, ok, err := r.store.Lookup(ctx, DocumentKey)
	if err != nil {
		return "", fmt.Errorf("failed to read document id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = documentPrefix + r.suffix(suffixLength)
	if err := r.store.Save(ctx, DocumentKey, id); err != nil {
		return "", fmt.Errorf("failed to save document id: %w", err)
	}
	slog.Info("Generated document id", "document_id", id)
	return id, nil
}

func (r *Resolver) fromReference(ref string) (string, bool) {
	if id, ok := share.DocumentID(ref); ok {
		return id, true
	}
	ref = strings.TrimSpace(ref)
	if r.tokens == nil || ref == "" {
		return "", false
	}
	id, err := r.tokens.DocumentID(ref)
	if err != nil {
		slog.Warn("Ignoring share reference", "error", err)
		return "", false
	}
	return id, true
}

// DisplayName returns the saved display name, or "" if the naming flow has not
// completed.
func (r *Resolver) DisplayName(ctx context.Context) (string, error) {
	name, _, err := r.store.Lookup(ctx, DisplayNameKey)
	if err != nil {
		return "", fmt.Errorf("failed to read display name: %w", err)
	}
	return name, nil
}

// SetDisplayName trims and saves name, returning the stored value.
// Empty or whitespace-only input returns ErrEmptyDisplayName and changes nothing.
func (r *Resolver) SetDisplayName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyDisplayName
	}
	if err := r.store.Save(ctx, DisplayNameKey, name); err != nil {
		return "", fmt.Errorf("failed to save display name: %w", err)
	}
	return name, nil
}

// Resolve builds the session Identity. DisplayName is empty until named.
func (r *Resolver) Resolve(ctx context.Context, ref string) (models.Identity, error) {
	participantID, err := r.ParticipantID(ctx)
	if err != nil {
		return models.Identity{}, err
	}
	documentID, err := r.DocumentID(ctx, ref)
	if err != nil {
		return models.Identity{}, err
	}
	name, err := r.DisplayName(ctx)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{
		ParticipantID: participantID,
		DocumentID:    documentID,
		DisplayName:   name,
	}, nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomBase36 is collision resistant enough for a handful of participants
// sharing one document; it is not meant to be unguessable.
func randomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}
