package identity

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qqoqto/travel-planner/internal/share"
	"github.com/qqoqto/travel-planner/internal/storage/sqlite"
)

var (
	participantPattern = regexp.MustCompile(`^user_[0-9a-z]{9}$`)
	documentPattern    = regexp.MustCompile(`^trip_[0-9a-z]{9}$`)
)

// failingStorage fails every call.
type failingStorage struct{}

var errDisk = errors.New("disk unavailable")

func (failingStorage) Lookup(context.Context, string) (string, bool, error) { return "", false, errDisk }
func (failingStorage) Save(context.Context, string, string) error           { return errDisk }

func TestParticipantID_StableAcrossResolvers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	first, err := NewResolver(store).ParticipantID(ctx)
	require.NoError(t, err)
	require.Regexp(t, participantPattern, first)

	// A new resolver over the same storage models a restart.
	second, err := NewResolver(store).ParticipantID(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDocumentID_Precedence(t *testing.T) {
	ctx := context.Background()

	t.Run("generates and persists when nothing is known", func(t *testing.T) {
		store := NewMemoryStorage()
		id, err := NewResolver(store).DocumentID(ctx, "")
		require.NoError(t, err)
		require.Regexp(t, documentPattern, id)

		again, err := NewResolver(store).DocumentID(ctx, "")
		require.NoError(t, err)
		require.Equal(t, id, again)
	})

	t.Run("reference wins over stored and is persisted", func(t *testing.T) {
		store := NewMemoryStorage()
		store.Save(ctx, DocumentKey, "trip_old")

		r := NewResolver(store)
		id, err := r.DocumentID(ctx, "https://plan.example.com/?trip=trip_shared")
		require.NoError(t, err)
		require.Equal(t, "trip_shared", id)

		id, err = r.DocumentID(ctx, "")
		require.NoError(t, err)
		require.Equal(t, "trip_shared", id)
	})

	t.Run("reference without trip falls back to stored", func(t *testing.T) {
		store := NewMemoryStorage()
		store.Save(ctx, DocumentKey, "trip_old")

		id, err := NewResolver(store).DocumentID(ctx, "https://plan.example.com/")
		require.NoError(t, err)
		require.Equal(t, "trip_old", id)
	})

	t.Run("share token is accepted when a signer is configured", func(t *testing.T) {
		signer := share.NewSigner("secret", 0)
		token, err := signer.Token("trip_token")
		require.NoError(t, err)

		id, err := NewResolver(NewMemoryStorage(), WithShareTokens(signer)).DocumentID(ctx, token)
		require.NoError(t, err)
		require.Equal(t, "trip_token", id)

		// Without a signer the token is not a reference.
		id, err = NewResolver(NewMemoryStorage()).DocumentID(ctx, token)
		require.NoError(t, err)
		require.Regexp(t, documentPattern, id)
	})
}

func TestDocumentID_ShareLinkRoundTrip(t *testing.T) {
	ctx := context.Background()

	id, err := NewResolver(NewMemoryStorage()).DocumentID(ctx, "")
	require.NoError(t, err)

	link := share.Link("https://plan.example.com", "/trip", id)

	// A different device opening the link resolves the same document.
	got, err := NewResolver(NewMemoryStorage()).DocumentID(ctx, link)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestSetDisplayName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	r := NewResolver(store)

	for _, bad := range []string{"", "   ", "\t\n"} {
		_, err := r.SetDisplayName(ctx, bad)
		require.ErrorIs(t, err, ErrEmptyDisplayName)
	}
	name, err := r.DisplayName(ctx)
	require.NoError(t, err)
	require.Empty(t, name, "rejected names must not change state")

	saved, err := r.SetDisplayName(ctx, "  Mika  ")
	require.NoError(t, err)
	require.Equal(t, "Mika", saved)

	name, err = NewResolver(store).DisplayName(ctx)
	require.NoError(t, err)
	require.Equal(t, "Mika", name)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	n := 0
	r := NewResolver(NewMemoryStorage(), WithSuffixGenerator(func(int) string {
		n++
		return []string{"aaaaaaaaa", "bbbbbbbbb"}[n-1]
	}))

	ident, err := r.Resolve(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "user_aaaaaaaaa", ident.ParticipantID)
	require.Equal(t, "trip_bbbbbbbbb", ident.DocumentID)
	require.False(t, ident.Named())

	r.SetDisplayName(ctx, "Ren")
	ident, err = r.Resolve(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "Ren", ident.DisplayName)
	require.True(t, ident.Named())
}

func TestResolver_StorageErrors(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(failingStorage{})

	_, err := r.ParticipantID(ctx)
	require.ErrorIs(t, err, errDisk)

	_, err = r.DocumentID(ctx, "?trip=trip_x")
	require.ErrorIs(t, err, errDisk)

	_, err = r.Resolve(ctx, "")
	require.ErrorIs(t, err, errDisk)
}

func TestResolver_SQLiteStorage(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "local.db")

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	id, err := NewResolver(store).ParticipantID(ctx)
	require.NoError(t, err)
	store.Close()

	reopened, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	again, err := NewResolver(reopened).ParticipantID(ctx)
	require.NoError(t, err)
	require.Equal(t, id, again)
}
