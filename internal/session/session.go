// Package session wires the synchronization core together for one participant
// in one document: the six synchronizers, the presence tracker, the mutation
// dispatcher and the derived view.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/qqoqto/travel-planner/internal/collection"
	"github.com/qqoqto/travel-planner/internal/dispatch"
	"github.com/qqoqto/travel-planner/internal/identity"
	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/presence"
	"github.com/qqoqto/travel-planner/internal/projection"
	"github.com/qqoqto/travel-planner/internal/remote"
	"github.com/qqoqto/travel-planner/internal/share"
)

// ErrInvalidDay is returned by SelectDay for a day outside 0..TotalDays.
var ErrInvalidDay = errors.New("invalid day")

// Options configures a Session.
type Options struct {
	// TotalDays is the number of itinerary days. Zero means models.DefaultTotalDays.
	TotalDays int

	// OnChange receives a fresh View after every synchronized update or day
	// selection. Calls are serialized and a View is never delivered after a
	// newer one. OnChange may call View but not SelectDay or Close.
	OnChange func(View)

	// PresenceOptions are passed to the presence tracker.
	PresenceOptions []presence.Option

	// Names persists display names chosen with SetDisplayName. It is
	// typically the identity.Resolver that built the session's identity.
	Names NameStore
}

// NameStore saves a display name and returns the stored (trimmed) value.
type NameStore interface {
	SetDisplayName(ctx context.Context, name string) (string, error)
}

// View is everything a presentation layer needs to render the document.
// Its slices are shared with later views and must not be modified.
type View struct {
	Identity models.Identity

	// Info is the default trip info until the document has one.
	Info       models.TripInfo
	InfoStored bool

	SelectedDay int
	Days        []int
	Places      []models.Place
	Itinerary   []projection.ItineraryRow

	Expenses   []models.Expense
	Budget     projection.BudgetSummary
	ByCategory []projection.CategorySpend
	ByPayer    projection.PayerSpend

	Checklist         []models.ChecklistItem
	ChecklistProgress projection.Progress
	Wishlist          []models.WishlistItem
	WishlistProgress  projection.Progress

	Members  []models.Member
	Presence projection.PresenceCount

	// Errors holds the current failure of each synchronizer that has one,
	// keyed by collection name.
	Errors map[string]error

	version uint64
}

// Session is one participant's live connection to one document.
type Session struct {
	names      NameStore
	totalDays  int
	onChange   func(View)
	dispatcher *dispatch.Dispatcher
	presence   *presence.Tracker

	// mu guards the identity, the synchronizer handles and state.
	mu        sync.Mutex
	identity  models.Identity
	info      *collection.Singleton[models.TripInfo]
	places    *collection.Collection[models.Place, *models.Place]
	expenses  *collection.Collection[models.Expense, *models.Expense]
	checklist *collection.Collection[models.ChecklistItem, *models.ChecklistItem]
	wishlist  *collection.Collection[models.WishlistItem, *models.WishlistItem]
	state     state

	notifyMu  sync.Mutex
	delivered uint64

	closeOnce sync.Once
	closeErr  error
}

type state struct {
	version     uint64
	selectedDay int
	info        *models.TripInfo
	places      []models.Place
	expenses    []models.Expense
	checklist   []models.ChecklistItem
	wishlist    []models.WishlistItem
	members     []models.Member
}

// Open subscribes to every collection of identity.DocumentID and announces
// the participant's presence.
func Open(ctx context.Context, store remote.Store, identity models.Identity, opts Options) (*Session, error) {
	totalDays := opts.TotalDays
	if totalDays <= 0 {
		totalDays = models.DefaultTotalDays
	}

	s := &Session{
		identity:   identity,
		names:      opts.Names,
		totalDays:  totalDays,
		onChange:   opts.OnChange,
		dispatcher: dispatch.New(store, identity, dispatch.WithTotalDays(totalDays)),
		presence:   presence.New(store, identity, opts.PresenceOptions...),
		state: state{
			places:    []models.Place{},
			expenses:  []models.Expense{},
			checklist: []models.ChecklistItem{},
			wishlist:  []models.WishlistItem{},
			members:   []models.Member{},
		},
	}

	if err := s.subscribe(ctx, store); err != nil {
		s.stop()
		return nil, err
	}
	if err := s.presence.Start(ctx, func(m []models.Member) {
		s.update(func(st *state) { st.members = m })
	}); err != nil {
		s.stop()
		return nil, fmt.Errorf("failed to start presence: %w", err)
	}

	slog.Info("Session opened",
		"document", identity.DocumentID,
		"participant", identity.ParticipantID,
		"name", identity.DisplayName,
	)
	return s, nil
}

func (s *Session) subscribe(ctx context.Context, store remote.Store) error {
	doc := s.identity.DocumentID

	info, err := collection.SubscribeSingleton(ctx, store, doc, models.InfoPath, func(v *models.TripInfo) {
		s.update(func(st *state) { st.info = v })
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()

	places, err := collection.Subscribe[models.Place](ctx, store, doc, models.PlacesPath, func(v []models.Place) {
		s.update(func(st *state) { st.places = v })
	}, collection.WithValidator(s.dispatcher.ValidatePlace))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.places = places
	s.mu.Unlock()

	expenses, err := collection.Subscribe[models.Expense](ctx, store, doc, models.ExpensesPath, func(v []models.Expense) {
		s.update(func(st *state) { st.expenses = v })
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.expenses = expenses
	s.mu.Unlock()

	checklist, err := collection.Subscribe[models.ChecklistItem](ctx, store, doc, models.ChecklistPath, func(v []models.ChecklistItem) {
		s.update(func(st *state) { st.checklist = v })
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.checklist = checklist
	s.mu.Unlock()

	wishlist, err := collection.Subscribe[models.WishlistItem](ctx, store, doc, models.WishlistPath, func(v []models.WishlistItem) {
		s.update(func(st *state) { st.wishlist = v })
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.wishlist = wishlist
	s.mu.Unlock()
	return nil
}

// update applies fn to the state and publishes the resulting view.
func (s *Session) update(fn func(*state)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.version++
	v := s.viewLocked()
	s.mu.Unlock()

	s.publish(v)
}

func (s *Session) publish(v View) {
	if s.onChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if v.version <= s.delivered {
		return
	}
	s.delivered = v.version
	s.onChange(v)
}

func (s *Session) viewLocked() View {
	st := &s.state
	info := models.DefaultTripInfo()
	if st.info != nil {
		info = *st.info
	}

	v := View{
		Identity:          s.identity,
		Info:              info,
		InfoStored:        st.info != nil,
		SelectedDay:       st.selectedDay,
		Days:              projection.Days(s.totalDays),
		Places:            st.places,
		Itinerary:         projection.Itinerary(st.places, st.selectedDay),
		Expenses:          st.expenses,
		Budget:            projection.Summarize(info, st.expenses),
		ByCategory:        projection.SpendByCategory(st.expenses),
		ByPayer:           projection.SpendByPayer(st.expenses),
		Checklist:         st.checklist,
		ChecklistProgress: projection.Completed(st.checklist),
		Wishlist:          st.wishlist,
		WishlistProgress:  projection.Completed(st.wishlist),
		Members:           st.members,
		Presence:          projection.Presence(st.members),
		version:           st.version,
	}
	v.Errors = s.errors()
	return v
}

func (s *Session) errors() map[string]error {
	errs := make(map[string]error)
	record := func(name string, err error) {
		if err != nil {
			errs[name] = err
		}
	}
	if s.info != nil {
		record(models.InfoPath, s.info.Err())
	}
	if s.places != nil {
		record(models.PlacesPath, s.places.Err())
	}
	if s.expenses != nil {
		record(models.ExpensesPath, s.expenses.Err())
	}
	if s.checklist != nil {
		record(models.ChecklistPath, s.checklist.Err())
	}
	if s.wishlist != nil {
		record(models.WishlistPath, s.wishlist.Err())
	}
	if err := s.presence.Err(); err != nil && !errors.Is(err, presence.ErrNotStarted) {
		errs[models.MembersPath] = err
	}
	return errs
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// SelectDay filters the itinerary to day, or to all days for projection.AllDays.
func (s *Session) SelectDay(day int) error {
	if day < projection.AllDays || day > s.totalDays {
		return fmt.Errorf("%w: %d not in 0..%d", ErrInvalidDay, day, s.totalDays)
	}
	s.update(func(st *state) { st.selectedDay = day })
	return nil
}

// Dispatcher returns the mutation dispatcher for this session.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Presence returns the presence tracker for this session.
func (s *Session) Presence() *presence.Tracker {
	return s.presence
}

// Identity returns the session's identity, including a display name set
// after Open.
func (s *Session) Identity() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetDisplayName completes or repeats the naming flow. The name is saved
// through Options.Names when set, used as addedBy for later additions, and
// announced in the members collection. Empty or whitespace-only names return
// identity.ErrEmptyDisplayName and change nothing.
func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return identity.ErrEmptyDisplayName
	}
	if s.names != nil {
		stored, err := s.names.SetDisplayName(ctx, name)
		if err != nil {
			return err
		}
		name = stored
	}

	s.mu.Lock()
	s.identity.DisplayName = name
	s.mu.Unlock()
	s.dispatcher.SetDisplayName(name)

	err := s.presence.SetDisplayName(ctx, name)
	s.update(func(*state) {})
	if err != nil {
		return fmt.Errorf("failed to announce new display name: %w", err)
	}
	slog.Info("Display name set", "participant", s.identity.ParticipantID, "name", name)
	return nil
}

// ShareLink returns the reference other participants open to join this document.
func (s *Session) ShareLink(origin, path string) string {
	return share.Link(origin, path, s.identity.DocumentID)
}

// Close records the participant as offline and releases every subscription.
// OnChange is not called after Close returns. The departure write is best
// effort; its error is returned but the subscriptions are released regardless.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.presence.Close(ctx)
		s.stop()
		slog.Info("Session closed", "document", s.identity.DocumentID)
	})
	return s.closeErr
}

func (s *Session) stop() {
	s.mu.Lock()
	stoppers := []interface{ Stop() }{}
	if s.info != nil {
		stoppers = append(stoppers, s.info)
	}
	if s.places != nil {
		stoppers = append(stoppers, s.places)
	}
	if s.expenses != nil {
		stoppers = append(stoppers, s.expenses)
	}
	if s.checklist != nil {
		stoppers = append(stoppers, s.checklist)
	}
	if s.wishlist != nil {
		stoppers = append(stoppers, s.wishlist)
	}
	s.mu.Unlock()

	// Stop waits for a running notification, which may itself need s.mu.
	for _, st := range stoppers {
		st.Stop()
	}
}
