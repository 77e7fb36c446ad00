package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/qqoqto/travel-planner/internal/collection"
	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/projection"
	"github.com/qqoqto/travel-planner/internal/remote"
	"github.com/qqoqto/travel-planner/internal/tree"
)

const docID = "trip_test00001"

func newDispatcher(t *testing.T, name string) (*Dispatcher, *tree.Tree) {
	t.Helper()
	tr := tree.New()
	return newDispatcherOn(tr, name), tr
}

func newDispatcherOn(tr *tree.Tree, name string) *Dispatcher {
	ident := models.Identity{ParticipantID: "user_" + name, DocumentID: docID, DisplayName: name}
	return New(remote.NewLocal(tr), ident)
}

func get(t *testing.T, tr *tree.Tree, parts ...string) string {
	t.Helper()
	raw, err := tr.Get(models.DocumentPath(docID, parts...))
	require.NoError(t, err)
	return string(raw)
}

// brokenStore fails every call.
type brokenStore struct{}

var errOffline = errors.New("offline")

func (brokenStore) Write(context.Context, string, any) error { return errOffline }
func (brokenStore) Append(context.Context, string, any) (string, error) {
	return "", errOffline
}
func (brokenStore) Delete(context.Context, string) error { return errOffline }
func (brokenStore) Subscribe(context.Context, string, remote.Handler) (remote.Unsubscribe, error) {
	return nil, errOffline
}

func TestAddExpense_Boundaries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		item        string
		amount      string
		wantCreated bool
		wantAmount  string
	}{
		{name: "empty item", item: "", amount: "100"},
		{name: "blank item", item: "   ", amount: "100"},
		{name: "empty amount", item: "x", amount: ""},
		{name: "non-numeric amount", item: "x", amount: "fifty"},
		{name: "negative amount", item: "x", amount: "-5"},
		{name: "valid amount", item: "x", amount: "50", wantCreated: true, wantAmount: "50"},
		{name: "zero amount", item: "x", amount: "0", wantCreated: true, wantAmount: "0"},
		{name: "decimal amount", item: "Onigiri", amount: " 1.5 ", wantCreated: true, wantAmount: "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, tr := newDispatcher(t, "Aki")
			draft := models.NewExpenseDraft()
			draft.Item = tt.item
			draft.Amount = tt.amount

			key, err := d.AddExpense(ctx, &draft)
			require.NoError(t, err)

			if !tt.wantCreated {
				require.Empty(t, key)
				require.Empty(t, get(t, tr, models.ExpensesPath))
				require.Equal(t, tt.item, draft.Item, "rejected draft must be kept")
				return
			}

			require.NotEmpty(t, key)
			require.JSONEq(t,
				`{"item":"`+strings.TrimSpace(tt.item)+`","amount":`+tt.wantAmount+`,"payer":"me","method":"cash","category":"food","addedBy":"Aki"}`,
				get(t, tr, models.ExpensesPath, key))
			require.Equal(t, models.NewExpenseDraft(), draft, "draft must be reset")
		})
	}
}

func TestAddExpense_InvalidEnum(t *testing.T) {
	d, tr := newDispatcher(t, "Aki")
	draft := models.ExpenseDraft{Item: "Taxi", Amount: "3000", Payer: "someone", Method: models.MethodCard, Category: models.CategoryTransport}

	key, err := d.AddExpense(context.Background(), &draft)
	require.NoError(t, err)
	require.Empty(t, key)
	require.Empty(t, get(t, tr, models.ExpensesPath))
}

func TestAddExpense_ZeroDraftFields(t *testing.T) {
	d, tr := newDispatcher(t, "Aki")
	draft := models.ExpenseDraft{Item: "x", Amount: "50"}

	key, err := d.AddExpense(context.Background(), &draft)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.JSONEq(t,
		`{"item":"x","amount":50,"payer":"me","method":"cash","category":"food","addedBy":"Aki"}`,
		get(t, tr, models.ExpensesPath, key))
}

func TestAddPlace_ZeroDraftFields(t *testing.T) {
	d, tr := newDispatcher(t, "Aki")
	draft := models.PlaceDraft{Name: "Castle"}

	key, err := d.AddPlace(context.Background(), &draft)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.JSONEq(t, `1`, get(t, tr, models.PlacesPath, key, "day"))
	require.JSONEq(t, `"spot"`, get(t, tr, models.PlacesPath, key, "type"))
	require.Equal(t, models.NewPlaceDraft(), draft)
}

func TestSetDisplayName(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	d := New(remote.NewLocal(tr), models.Identity{ParticipantID: "user_x", DocumentID: docID})
	require.Empty(t, d.DisplayName())

	d.SetDisplayName("Alice")
	draft := models.PlaceDraft{Day: 1, Name: "Nara"}
	key, err := d.AddPlace(ctx, &draft)
	require.NoError(t, err)
	require.JSONEq(t, `"Alice"`, get(t, tr, models.PlacesPath, key, "addedBy"))
}

func TestAddPlace(t *testing.T) {
	ctx := context.Background()

	t.Run("empty name is a no-op", func(t *testing.T) {
		d, tr := newDispatcher(t, "Aki")
		draft := models.NewPlaceDraft()
		draft.Name = "  "

		key, err := d.AddPlace(ctx, &draft)
		require.NoError(t, err)
		require.Empty(t, key)
		require.Empty(t, get(t, tr, models.PlacesPath))
	})

	t.Run("day outside range is a no-op", func(t *testing.T) {
		d, tr := newDispatcher(t, "Aki")
		for _, day := range []int{-1, models.DefaultTotalDays + 1} {
			draft := models.NewPlaceDraft()
			draft.Name = "Nara"
			draft.Day = day

			key, err := d.AddPlace(ctx, &draft)
			require.NoError(t, err)
			require.Empty(t, key, "day %d", day)
		}
		require.Empty(t, get(t, tr, models.PlacesPath))
	})

	t.Run("malformed time is a no-op", func(t *testing.T) {
		d, _ := newDispatcher(t, "Aki")
		for _, tm := range []string{"9:00", "25:00", "noon"} {
			draft := models.NewPlaceDraft()
			draft.Name = "Nara"
			draft.Time = tm

			key, err := d.AddPlace(ctx, &draft)
			require.NoError(t, err)
			require.Empty(t, key, "time %q", tm)
		}
	})

	t.Run("valid draft is stored with author and reset", func(t *testing.T) {
		d, tr := newDispatcher(t, "Aki")
		draft := models.PlaceDraft{Day: 2, Time: "09:30", Name: " Osaka Castle ", Type: models.PlaceSpot, Transport: "JR"}

		key, err := d.AddPlace(ctx, &draft)
		require.NoError(t, err)
		require.NotEmpty(t, key)
		require.JSONEq(t,
			`{"day":2,"time":"09:30","name":"Osaka Castle","type":"spot","address":"","transport":"JR","duration":"","addedBy":"Aki"}`,
			get(t, tr, models.PlacesPath, key))
		require.Equal(t, models.NewPlaceDraft(), draft)
	})

	t.Run("missing type defaults to spot", func(t *testing.T) {
		d, tr := newDispatcher(t, "Aki")
		draft := models.PlaceDraft{Day: 1, Name: "Kuromon Market"}

		key, err := d.AddPlace(ctx, &draft)
		require.NoError(t, err)
		require.Contains(t, get(t, tr, models.PlacesPath, key), `"type":"spot"`)
	})

	t.Run("custom total days", func(t *testing.T) {
		tr := tree.New()
		ident := models.Identity{DocumentID: docID, DisplayName: "Aki"}
		d := New(remote.NewLocal(tr), ident, WithTotalDays(10))
		require.Equal(t, 10, d.TotalDays())

		draft := models.PlaceDraft{Day: 9, Name: "Kobe"}
		key, err := d.AddPlace(ctx, &draft)
		require.NoError(t, err)
		require.NotEmpty(t, key)
	})
}

func TestDeletePlace_Idempotent(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")

	keep := models.PlaceDraft{Day: 1, Name: "Keep"}
	keepKey, err := d.AddPlace(ctx, &keep)
	require.NoError(t, err)
	drop := models.PlaceDraft{Day: 1, Name: "Drop"}
	dropKey, err := d.AddPlace(ctx, &drop)
	require.NoError(t, err)

	require.NoError(t, d.DeletePlace(ctx, dropKey))
	once := get(t, tr, models.PlacesPath)

	require.NoError(t, d.DeletePlace(ctx, dropKey))
	require.Equal(t, once, get(t, tr, models.PlacesPath))
	require.Contains(t, once, keepKey)

	require.NoError(t, d.DeletePlace(ctx, "never-existed"))
	require.Equal(t, once, get(t, tr, models.PlacesPath))
}

func TestDelete_InvalidKeyDoesNotTouchCollection(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")

	draft := models.NewExpenseDraft()
	draft.Item, draft.Amount = "Ramen", "1200"
	_, err := d.AddExpense(ctx, &draft)
	require.NoError(t, err)
	before := get(t, tr, models.ExpensesPath)

	for _, id := range []string{"", "a/b", "bad.key"} {
		require.NoError(t, d.DeleteExpense(ctx, id))
		require.NoError(t, d.ToggleChecklist(ctx, id, false))
	}
	require.Equal(t, before, get(t, tr, models.ExpensesPath))
}

func TestToggle_WritesCheckedFieldOnly(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")

	key, err := d.AddChecklistItem(ctx, "Passport")
	require.NoError(t, err)
	require.JSONEq(t, `{"item":"Passport","checked":false,"important":false}`, get(t, tr, models.ChecklistPath, key))

	require.NoError(t, d.ToggleChecklist(ctx, key, false))
	require.JSONEq(t, `{"item":"Passport","checked":true,"important":false}`, get(t, tr, models.ChecklistPath, key))

	require.NoError(t, d.ToggleChecklist(ctx, key, true))
	require.Equal(t, "false", get(t, tr, models.ChecklistPath, key, "checked"))

	wish, err := d.AddWishlistItem(ctx, "  Universal Studios ")
	require.NoError(t, err)
	require.JSONEq(t, `{"item":"Universal Studios","checked":false}`, get(t, tr, models.WishlistPath, wish))
	require.NoError(t, d.ToggleWishlist(ctx, wish, false))
	require.Equal(t, "true", get(t, tr, models.WishlistPath, wish, "checked"))
}

func TestToggle_TwoClientRace(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	alice := newDispatcherOn(tr, "Alice")
	bob := newDispatcherOn(tr, "Bob")

	key, err := alice.AddChecklistItem(ctx, "Yen cash")
	require.NoError(t, err)

	// Both participants saw checked=false and both tap the item.
	require.NoError(t, alice.ToggleChecklist(ctx, key, false))
	require.Equal(t, "true", get(t, tr, models.ChecklistPath, key, "checked"))

	require.NoError(t, bob.ToggleChecklist(ctx, key, false))

	// Two toggles from a fresh view would end unchecked; the stale belief
	// makes the second write repeat the first and the item stays checked.
	require.Equal(t, "true", get(t, tr, models.ChecklistPath, key, "checked"))

	// With the current value observed, the next toggle flips it back.
	require.NoError(t, bob.ToggleChecklist(ctx, key, true))
	require.Equal(t, "false", get(t, tr, models.ChecklistPath, key, "checked"))
}

func TestAddListItems_BlankIsNoop(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")

	key, err := d.AddChecklistItem(ctx, " \t")
	require.NoError(t, err)
	require.Empty(t, key)
	key, err = d.AddWishlistItem(ctx, "")
	require.NoError(t, err)
	require.Empty(t, key)

	require.Empty(t, get(t, tr))
}

func TestUpdateTripInfo_ReplacesWholeValue(t *testing.T) {
	ctx := context.Background()
	tr := tree.New()
	alice := newDispatcherOn(tr, "Alice")
	bob := newDispatcherOn(tr, "Bob")

	require.NoError(t, alice.UpdateTripInfo(ctx, models.DefaultTripInfo()))

	info := models.TripInfo{Name: "Kyoto weekend", Budget: 30000, Currency: "¥"}
	require.NoError(t, bob.UpdateTripInfo(ctx, info))

	require.JSONEq(t,
		`{"name":"Kyoto weekend","startDate":"","endDate":"","budget":30000,"currency":"¥"}`,
		get(t, tr, models.InfoPath))
}

func TestRemoteFailuresAreReported(t *testing.T) {
	ctx := context.Background()
	d := New(brokenStore{}, models.Identity{DocumentID: docID, DisplayName: "Aki"})

	place := models.PlaceDraft{Day: 1, Name: "Nara"}
	_, err := d.AddPlace(ctx, &place)
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, err, errOffline)
	require.Equal(t, "Nara", place.Name, "draft must be kept on failure")

	expense := models.ExpenseDraft{Item: "Tea", Amount: "500", Payer: models.PayerMe, Method: models.MethodCash, Category: models.CategoryFood}
	_, err = d.AddExpense(ctx, &expense)
	require.ErrorIs(t, err, ErrRemoteUnavailable)

	_, err = d.AddChecklistItem(ctx, "Passport")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	_, err = d.AddWishlistItem(ctx, "Deer crackers")
	require.ErrorIs(t, err, ErrRemoteUnavailable)

	require.ErrorIs(t, d.DeletePlace(ctx, "k1"), ErrRemoteUnavailable)
	require.ErrorIs(t, d.DeleteExpense(ctx, "k1"), ErrRemoteUnavailable)
	require.ErrorIs(t, d.ToggleChecklist(ctx, "k1", false), ErrRemoteUnavailable)
	require.ErrorIs(t, d.ToggleWishlist(ctx, "k1", false), ErrRemoteUnavailable)
	require.ErrorIs(t, d.UpdateTripInfo(ctx, models.DefaultTripInfo()), ErrRemoteUnavailable)
}

func TestPlaceDayInvariantAfterSync(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")
	store := remote.NewLocal(tr)

	places, err := collection.Subscribe[models.Place](ctx, store, docID, models.PlacesPath, nil,
		collection.WithValidator(d.ValidatePlace))
	require.NoError(t, err)
	defer places.Stop()

	for day := -1; day <= d.TotalDays()+2; day++ {
		draft := models.PlaceDraft{Day: day, Name: "Stop"}
		_, err := d.AddPlace(ctx, &draft)
		require.NoError(t, err)
	}
	// A participant running an older build writes an out-of-range day directly.
	_, err = store.Append(ctx, models.DocumentPath(docID, models.PlacesPath), models.Place{Day: 42, Name: "Rogue"})
	require.NoError(t, err)

	// Day 0 is an unset day and lands on day 1 alongside the explicit day 1.
	require.Eventually(t, func() bool {
		return len(places.Items()) == d.TotalDays()+1
	}, 2*time.Second, 10*time.Millisecond)

	for _, p := range places.Items() {
		require.GreaterOrEqual(t, p.Day, 1)
		require.LessOrEqual(t, p.Day, d.TotalDays())
	}
}

func TestTotalExpenseTracksSyncedSequence(t *testing.T) {
	ctx := context.Background()
	d, tr := newDispatcher(t, "Aki")

	expenses, err := collection.Subscribe[models.Expense](ctx, remote.NewLocal(tr), docID, models.ExpensesPath, nil)
	require.NoError(t, err)
	defer expenses.Stop()

	sum := func(items []models.Expense) decimal.Decimal {
		s := decimal.Zero
		for _, e := range items {
			s = s.Add(decimal.NewFromFloat(e.Amount))
		}
		return s
	}
	settled := func(want string) {
		t.Helper()
		require.Eventually(t, func() bool {
			items := expenses.Items()
			total := projection.TotalExpense(items)
			return total.Equal(sum(items)) && total.Equal(decimal.RequireFromString(want))
		}, 2*time.Second, 10*time.Millisecond)
	}

	var keys []string
	for _, amount := range []string{"1200", "350.5", "80"} {
		draft := models.NewExpenseDraft()
		draft.Item, draft.Amount = "item", amount
		key, err := d.AddExpense(ctx, &draft)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	settled("1630.5")

	require.NoError(t, d.DeleteExpense(ctx, keys[1]))
	settled("1280")

	require.NoError(t, d.DeleteExpense(ctx, keys[0]))
	require.NoError(t, d.DeleteExpense(ctx, keys[2]))
	settled("0")
}
