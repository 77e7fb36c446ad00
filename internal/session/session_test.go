package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/qqoqto/travel-planner/internal/identity"
	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/projection"
	"github.com/qqoqto/travel-planner/internal/remote"
	"github.com/qqoqto/travel-planner/internal/share"
	"github.com/qqoqto/travel-planner/internal/tree"
)

const docID = "trip_session01"

// viewRecorder keeps the most recent view delivered to OnChange.
type viewRecorder struct {
	mu    sync.Mutex
	last  View
	calls int
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = v
	r.calls++
}

func (r *viewRecorder) latest() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *viewRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *viewRecorder) waitFor(t *testing.T, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(r.latest()) }, 2*time.Second, 10*time.Millisecond)
	return r.latest()
}

func open(t *testing.T, store remote.Store, participant, name string) (*Session, *viewRecorder) {
	t.Helper()
	rec := &viewRecorder{}
	ident := models.Identity{ParticipantID: participant, DocumentID: docID, DisplayName: name}
	s, err := Open(context.Background(), store, ident, Options{OnChange: rec.record})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, rec
}

func TestOpen_EmptyDocument(t *testing.T) {
	s, rec := open(t, remote.NewLocal(tree.New()), "user_a", "Aki")

	v := rec.waitFor(t, func(v View) bool { return v.Presence.Total == 1 })
	require.Equal(t, models.DefaultTripInfo(), v.Info)
	require.False(t, v.InfoStored)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, v.Days)
	require.Empty(t, v.Places)
	require.Empty(t, v.Itinerary)
	require.True(t, v.Budget.Total.IsZero())
	require.True(t, v.Budget.HasBudget)
	require.Equal(t, projection.PresenceCount{Online: 1, Total: 1}, v.Presence)
	require.Empty(t, v.Errors)
	require.Equal(t, s.Identity(), v.Identity)
}

func TestTwoParticipantsConverge(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	alice, aliceView := open(t, remote.NewLocal(tr), "user_alice", "Alice")
	bob, bobView := open(t, remote.NewLocal(tr), "user_bob", "Bob")

	place := models.PlaceDraft{Day: 2, Time: "10:00", Name: "Nara Park", Type: models.PlaceSpot}
	_, err := bob.Dispatcher().AddPlace(ctx, &place)
	require.NoError(t, err)

	expense := models.NewExpenseDraft()
	expense.Item, expense.Amount = "Deer crackers", "200"
	_, err = alice.Dispatcher().AddExpense(ctx, &expense)
	require.NoError(t, err)

	for _, rec := range []*viewRecorder{aliceView, bobView} {
		v := rec.waitFor(t, func(v View) bool {
			return len(v.Places) == 1 && len(v.Expenses) == 1 && v.Presence.Online == 2
		})
		require.Equal(t, "Bob", v.Places[0].AddedBy)
		require.Equal(t, "Alice", v.Expenses[0].AddedBy)
		require.True(t, v.Budget.Total.Equal(decimal.NewFromInt(200)))
		require.True(t, v.Budget.Remaining.Equal(decimal.NewFromInt(99800)))
	}

	info := models.TripInfo{Name: "Kansai", StartDate: "2026/03/01", EndDate: "2026/03/04", Budget: 200, Currency: "¥"}
	require.NoError(t, alice.Dispatcher().UpdateTripInfo(ctx, info))
	v := bobView.waitFor(t, func(v View) bool { return v.InfoStored })
	require.Equal(t, info, v.Info)
	require.Equal(t, int64(100), v.Budget.PercentUsed)
}

func TestSelectDay(t *testing.T) {
	ctx := context.Background()
	s, rec := open(t, remote.NewLocal(tree.New()), "user_a", "Aki")

	for _, d := range []struct {
		day  int
		time string
	}{{1, "09:00"}, {2, "15:00"}, {2, "11:00"}, {3, "08:00"}} {
		draft := models.PlaceDraft{Day: d.day, Time: d.time, Name: "Stop"}
		_, err := s.Dispatcher().AddPlace(ctx, &draft)
		require.NoError(t, err)
	}
	rec.waitFor(t, func(v View) bool { return len(v.Places) == 4 })

	require.NoError(t, s.SelectDay(2))
	v := rec.waitFor(t, func(v View) bool { return v.SelectedDay == 2 })
	require.Len(t, v.Itinerary, 2)
	require.Equal(t, "11:00", v.Itinerary[0].Place.Time)
	require.Equal(t, "15:00", v.Itinerary[1].Place.Time)
	require.False(t, v.Itinerary[0].DayHeader)

	require.NoError(t, s.SelectDay(projection.AllDays))
	v = s.View()
	require.Len(t, v.Itinerary, 4)
	require.True(t, v.Itinerary[0].DayHeader)

	require.ErrorIs(t, s.SelectDay(-1), ErrInvalidDay)
	require.ErrorIs(t, s.SelectDay(8), ErrInvalidDay)
}

func TestOutOfRangePlacesAreExcluded(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	store := remote.NewLocal(tr)
	s, rec := open(t, store, "user_a", "Aki")

	_, err := store.Append(ctx, models.DocumentPath(docID, models.PlacesPath), models.Place{Day: 12, Name: "Too late"})
	require.NoError(t, err)
	draft := models.PlaceDraft{Day: 7, Name: "Last day"}
	_, err = s.Dispatcher().AddPlace(ctx, &draft)
	require.NoError(t, err)

	v := rec.waitFor(t, func(v View) bool { return len(v.Places) == 1 })
	require.Equal(t, "Last day", v.Places[0].Name)
}

func TestShareLinkRoundTrip(t *testing.T) {
	s, _ := open(t, remote.NewLocal(tree.New()), "user_a", "Aki")

	link := s.ShareLink("https://plan.example.com", "/")
	require.Equal(t, "https://plan.example.com/?trip="+docID, link)

	id, ok := share.DocumentID(link)
	require.True(t, ok)
	require.Equal(t, docID, id)
}

func TestClose_DepartsAndStopsUpdates(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	_, aliceView := open(t, remote.NewLocal(tr), "user_alice", "Alice")

	bobRec := &viewRecorder{}
	bob, err := Open(ctx, remote.NewLocal(tr), models.Identity{ParticipantID: "user_bob", DocumentID: docID, DisplayName: "Bob"}, Options{OnChange: bobRec.record})
	require.NoError(t, err)
	aliceView.waitFor(t, func(v View) bool { return v.Presence.Online == 2 })

	require.NoError(t, bob.Close(ctx))
	require.NoError(t, bob.Close(ctx))
	calls := bobRec.count()

	v := aliceView.waitFor(t, func(v View) bool { return v.Presence.Online == 1 })
	require.Equal(t, 2, v.Presence.Total)

	_, err = remote.NewLocal(tr).Append(ctx, models.DocumentPath(docID, models.WishlistPath), models.WishlistItem{Item: "Onsen"})
	require.NoError(t, err)
	aliceView.waitFor(t, func(v View) bool { return len(v.Wishlist) == 1 })
	require.Equal(t, calls, bobRec.count())
}

// faultyStore lets a test report a failure on one subscribed path.
type faultyStore struct {
	*remote.Local
	mu       sync.Mutex
	handlers map[string]remote.Handler
}

func (f *faultyStore) Subscribe(ctx context.Context, path string, h remote.Handler) (remote.Unsubscribe, error) {
	f.mu.Lock()
	f.handlers[path] = h
	f.mu.Unlock()
	return f.Local.Subscribe(ctx, path, h)
}

func (f *faultyStore) fail(path string, err error) {
	f.mu.Lock()
	h := f.handlers[path]
	f.mu.Unlock()
	h(remote.Snapshot{Path: path}, err)
}

func TestRemoteFailureKeepsLastKnownState(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Local: remote.NewLocal(tree.New()), handlers: map[string]remote.Handler{}}
	s, rec := open(t, store, "user_a", "Aki")

	key, err := s.Dispatcher().AddChecklistItem(ctx, "Passport")
	require.NoError(t, err)
	require.NoError(t, s.Dispatcher().ToggleChecklist(ctx, key, false))
	rec.waitFor(t, func(v View) bool { return v.ChecklistProgress == projection.Progress{Done: 1, Total: 1} })

	denied := errors.New("permission denied")
	store.fail(models.DocumentPath(docID, models.ChecklistPath), denied)

	v := rec.waitFor(t, func(v View) bool { return v.Errors[models.ChecklistPath] != nil })
	require.ErrorIs(t, v.Errors[models.ChecklistPath], denied)
	require.Len(t, v.Checklist, 1)
	require.Equal(t, "Passport", v.Checklist[0].Item)
}

func TestOnChange_CanReadView(t *testing.T) {
	var reads atomic.Int32
	var s *Session
	var ready atomic.Bool
	ident := models.Identity{ParticipantID: "user_a", DocumentID: docID, DisplayName: "Aki"}

	var err error
	s, err = Open(context.Background(), remote.NewLocal(tree.New()), ident, Options{
		OnChange: func(View) {
			if ready.Load() {
				s.View()
				reads.Add(1)
			}
		},
	})
	require.NoError(t, err)
	defer s.Close(context.Background())
	ready.Store(true)

	require.NoError(t, s.SelectDay(3))
	require.Eventually(t, func() bool { return reads.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSetDisplayName_AfterOpen(t *testing.T) {
	ctx := context.Background()
	names := identity.NewResolver(identity.NewMemoryStorage())

	rec := &viewRecorder{}
	ident := models.Identity{ParticipantID: "user_late", DocumentID: docID}
	s, err := Open(ctx, remote.NewLocal(tree.New()), ident, Options{OnChange: rec.record, Names: names})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(ctx) })

	require.Empty(t, s.View().Members, "unnamed participant must not announce")

	require.ErrorIs(t, s.SetDisplayName(ctx, "   "), identity.ErrEmptyDisplayName)
	require.NoError(t, s.SetDisplayName(ctx, " Alice "))

	stored, err := names.DisplayName(ctx)
	require.NoError(t, err)
	require.Equal(t, "Alice", stored)
	require.Equal(t, "Alice", s.Identity().DisplayName)

	draft := models.PlaceDraft{Day: 1, Name: "Kiyomizu"}
	_, err = s.Dispatcher().AddPlace(ctx, &draft)
	require.NoError(t, err)

	v := rec.waitFor(t, func(v View) bool { return len(v.Places) == 1 && v.Presence.Online == 1 })
	require.Equal(t, "Alice", v.Places[0].AddedBy)
	require.Equal(t, "Alice", v.Identity.DisplayName)
	require.Equal(t, "Alice", v.Members[0].Name)
}
