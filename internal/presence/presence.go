// Package presence publishes this participant's member record and observes
// everyone else's.
//
// A participant goes online when it loads a document with a known display
// name and goes offline on a best-effort write at shutdown. A process that
// dies without departing stays online for everyone else; nothing expires it.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/qqoqto/travel-planner/internal/collection"
	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/projection"
	"github.com/qqoqto/travel-planner/internal/remote"
)

// Avatars and Colors are the cosmetic palettes drawn from once per session.
var (
	Avatars = []string{"😊", "🙂", "😎", "🤓", "🥳", "😄", "🤗", "😇"}
	Colors  = []string{"#D4A574", "#7BA3A8", "#E87A5D", "#9B7EBD", "#5DAE8B", "#E8B4B8", "#A8D5E2", "#F5D76E"}
)

// ErrNotStarted is returned by operations that need the members subscription.
var ErrNotStarted = errors.New("presence tracker not started")

// Tracker manages one participant's presence in one document.
type Tracker struct {
	store remote.Store
	now   func() time.Time

	mu       sync.Mutex
	identity models.Identity
	avatar   string
	color    string
	online   bool
	members  *collection.Collection[models.Member, *models.Member]
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now for lastSeen timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithRand sets the source used to pick the session's avatar and color.
func WithRand(r *rand.Rand) Option {
	return func(t *Tracker) { t.pick(r) }
}

// New creates a Tracker for identity. Nothing is written until Start.
func New(store remote.Store, identity models.Identity, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		identity: identity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.avatar == "" {
		t.pick(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	return t
}

func (t *Tracker) pick(r *rand.Rand) {
	t.avatar = Avatars[r.IntN(len(Avatars))]
	t.color = Colors[r.IntN(len(Colors))]
}

func (t *Tracker) memberPath() string {
	return models.DocumentPath(t.identity.DocumentID, models.MembersPath, t.identity.ParticipantID)
}

// Start subscribes to the members collection and announces this participant
// if its display name is known. onUpdate follows collection.Subscribe rules.
func (t *Tracker) Start(ctx context.Context, onUpdate func([]models.Member)) error {
	t.mu.Lock()
	if t.members != nil {
		t.mu.Unlock()
		return fmt.Errorf("presence tracker already started")
	}
	ident := t.identity
	t.mu.Unlock()

	members, err := collection.Subscribe[models.Member](ctx, t.store, ident.DocumentID, models.MembersPath, onUpdate)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.members = members
	t.mu.Unlock()

	if !ident.Named() {
		slog.Debug("Display name unknown, not announcing presence", "participant", ident.ParticipantID)
		return nil
	}
	return t.Announce(ctx)
}

// Announce writes a full online member record. It does nothing while the
// display name is unknown.
func (t *Tracker) Announce(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.identity.Named() {
		return nil
	}

	m := models.Member{
		Name:     t.identity.DisplayName,
		Avatar:   t.avatar,
		Color:    t.color,
		Online:   true,
		LastSeen: t.now().UnixMilli(),
	}
	if err := t.store.Write(ctx, t.memberPath(), m); err != nil {
		return fmt.Errorf("failed to announce presence: %w", err)
	}
	t.online = true
	slog.Info("Presence announced", "participant", t.identity.ParticipantID, "name", m.Name, "avatar", m.Avatar)
	return nil
}

// SetDisplayName records a newly chosen name and announces with it.
func (t *Tracker) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	t.mu.Lock()
	t.identity.DisplayName = name
	t.mu.Unlock()
	return t.Announce(ctx)
}

// Depart writes the offline record {name, online:false, lastSeen}. It is best
// effort: the caller may be shutting down and the write can be lost.
func (t *Tracker) Depart(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.online {
		return nil
	}

	m := models.Member{
		Name:     t.identity.DisplayName,
		Online:   false,
		LastSeen: t.now().UnixMilli(),
	}
	if err := t.store.Write(ctx, t.memberPath(), m); err != nil {
		return fmt.Errorf("failed to record departure: %w", err)
	}
	t.online = false
	slog.Info("Presence departed", "participant", t.identity.ParticipantID)
	return nil
}

// Close departs and releases the members subscription.
func (t *Tracker) Close(ctx context.Context) error {
	err := t.Depart(ctx)

	t.mu.Lock()
	members := t.members
	t.mu.Unlock()
	if members != nil {
		members.Stop()
	}
	return err
}

// Members returns the latest members sequence.
func (t *Tracker) Members() []models.Member {
	t.mu.Lock()
	members := t.members
	t.mu.Unlock()
	if members == nil {
		return []models.Member{}
	}
	return members.Items()
}

// State reports a participant's presence as seen in the members collection.
// A missing record is Unknown, not Offline.
func (t *Tracker) State(participantID string) models.PresenceState {
	for _, m := range t.Members() {
		if m.ID != participantID {
			continue
		}
		if m.Online {
			return models.PresenceOnline
		}
		return models.PresenceOffline
	}
	return models.PresenceUnknown
}

// Summary counts online members out of all members.
func (t *Tracker) Summary() projection.PresenceCount {
	return projection.Presence(t.Members())
}

// Err returns the last failure of the members subscription, or nil.
func (t *Tracker) Err() error {
	t.mu.Lock()
	members := t.members
	t.mu.Unlock()
	if members == nil {
		return ErrNotStarted
	}
	return members.Err()
}

// Appearance returns the avatar and color chosen for this session.
func (t *Tracker) Appearance() (avatar, color string) {
	return t.avatar, t.color
}
