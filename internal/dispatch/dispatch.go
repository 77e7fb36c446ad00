// Package dispatch turns local edits into writes against the shared document.
//
// Every operation is fire-and-forget: it returns once the store accepted the
// write and never waits for the echo from a subscription. Drafts that fail
// validation are dropped without a write and without an error; the caller's
// form simply stays open. Store failures are returned wrapped in
// ErrRemoteUnavailable.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/remote"
)

// ErrRemoteUnavailable wraps every failure reported by the remote store.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Dispatcher writes mutations for one document on behalf of one participant.
type Dispatcher struct {
	store     remote.Store
	identity  models.Identity
	totalDays int
	validate  *validator.Validate

	// mu guards displayName, which the naming flow may set after New.
	mu          sync.RWMutex
	displayName string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTotalDays sets the number of valid itinerary days.
func WithTotalDays(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.totalDays = n
		}
	}
}

// New creates a Dispatcher writing as identity.
func New(store remote.Store, identity models.Identity, opts ...Option) *Dispatcher {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})

	d := &Dispatcher{
		store:     store,
		identity:    identity,
		totalDays:   models.DefaultTotalDays,
		validate:    v,
		displayName: identity.DisplayName,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TotalDays returns the number of valid itinerary days.
func (d *Dispatcher) TotalDays() int {
	return d.totalDays
}

// SetDisplayName changes the name recorded as addedBy on later additions.
func (d *Dispatcher) SetDisplayName(name string) {
	d.mu.Lock()
	d.displayName = name
	d.mu.Unlock()
}

// DisplayName returns the name recorded as addedBy.
func (d *Dispatcher) DisplayName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.displayName
}

func (d *Dispatcher) path(parts ...string) string {
	return models.DocumentPath(d.identity.DocumentID, parts...)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrRemoteUnavailable, op, err)
}

// validKey reports whether id can address a single entry of a collection.
// An empty id would address the whole collection.
func validKey(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/.#$[]")
}

// ValidatePlace checks a stored place against the itinerary day range.
// It is used to keep out-of-range entries out of synchronized views.
func (d *Dispatcher) ValidatePlace(p models.Place) error {
	if p.Day < 1 || p.Day > d.totalDays {
		return fmt.Errorf("day %d outside 1..%d", p.Day, d.totalDays)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("place has no name")
	}
	return nil
}

// AddPlace appends a place built from draft and resets draft on success.
// It returns the new key, or "" when the draft was rejected.
func (d *Dispatcher) AddPlace(ctx context.Context, draft *models.PlaceDraft) (string, error) {
	if draft == nil {
		return "", nil
	}

	candidate := *draft
	candidate.Name = strings.TrimSpace(candidate.Name)
	candidate.Time = strings.TrimSpace(candidate.Time)
	// Unset fields take the values of an empty form.
	candidate.Day = cmp.Or(candidate.Day, 1)
	candidate.Type = cmp.Or(candidate.Type, models.PlaceSpot)
	if err := d.validate.Struct(candidate); err != nil {
		slog.Debug("Rejected place draft", "error", err)
		return "", nil
	}
	if candidate.Day > d.totalDays {
		slog.Debug("Rejected place draft", "day", candidate.Day, "total_days", d.totalDays)
		return "", nil
	}

	place := models.Place{
		Day:       candidate.Day,
		Time:      candidate.Time,
		Name:      candidate.Name,
		Type:      candidate.Type,
		Address:   candidate.Address,
		Transport: candidate.Transport,
		Duration:  candidate.Duration,
		AddedBy:   d.DisplayName(),
	}
	key, err := d.store.Append(ctx, d.path(models.PlacesPath), place)
	if err != nil {
		return "", unavailable("add place", err)
	}

	slog.Info("Place added", "key", key, "day", place.Day, "name", place.Name)
	*draft = models.NewPlaceDraft()
	return key, nil
}

// DeletePlace removes a place. Deleting a missing place is a no-op.
func (d *Dispatcher) DeletePlace(ctx context.Context, id string) error {
	return d.remove(ctx, models.PlacesPath, id)
}

// ParseAmount converts entered text to a non-negative amount.
func ParseAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %s is negative", amount)
	}
	return amount, nil
}

// AddExpense appends an expense built from draft and resets draft on success.
// It returns the new key, or "" when the item is empty or the amount is not a
// non-negative number.
func (d *Dispatcher) AddExpense(ctx context.Context, draft *models.ExpenseDraft) (string, error) {
	if draft == nil {
		return "", nil
	}

	candidate := *draft
	candidate.Item = strings.TrimSpace(candidate.Item)
	candidate.Amount = strings.TrimSpace(candidate.Amount)
	candidate.Payer = cmp.Or(candidate.Payer, models.PayerMe)
	candidate.Method = cmp.Or(candidate.Method, models.MethodCash)
	candidate.Category = cmp.Or(candidate.Category, models.CategoryFood)
	if err := d.validate.Struct(candidate); err != nil {
		slog.Debug("Rejected expense draft", "error", err)
		return "", nil
	}
	amount, err := ParseAmount(candidate.Amount)
	if err != nil {
		slog.Debug("Rejected expense draft", "error", err)
		return "", nil
	}

	expense := models.Expense{
		Item:     candidate.Item,
		Amount:   amount.InexactFloat64(),
		Payer:    candidate.Payer,
		Method:   candidate.Method,
		Category: candidate.Category,
		AddedBy:  d.DisplayName(),
	}
	key, err := d.store.Append(ctx, d.path(models.ExpensesPath), expense)
	if err != nil {
		return "", unavailable("add expense", err)
	}

	slog.Info("Expense added", "key", key, "amount", amount, "category", expense.Category)
	*draft = models.NewExpenseDraft()
	return key, nil
}

// DeleteExpense removes an expense. Deleting a missing expense is a no-op.
func (d *Dispatcher) DeleteExpense(ctx context.Context, id string) error {
	return d.remove(ctx, models.ExpensesPath, id)
}

// ToggleChecklist writes !current to the item's checked field only.
//
// current is the caller's belief. Two participants toggling from the same
// belief both write the same value, and the later write wins.
func (d *Dispatcher) ToggleChecklist(ctx context.Context, id string, current bool) error {
	return d.toggle(ctx, models.ChecklistPath, id, current)
}

// ToggleWishlist writes !current to the item's checked field only.
func (d *Dispatcher) ToggleWishlist(ctx context.Context, id string, current bool) error {
	return d.toggle(ctx, models.WishlistPath, id, current)
}

// AddChecklistItem appends an unchecked, unimportant checklist item.
// It returns "" when text is blank.
func (d *Dispatcher) AddChecklistItem(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	key, err := d.store.Append(ctx, d.path(models.ChecklistPath), models.ChecklistItem{Item: text})
	if err != nil {
		return "", unavailable("add checklist item", err)
	}
	slog.Info("Checklist item added", "key", key)
	return key, nil
}

// AddWishlistItem appends an unchecked wishlist item.
// It returns "" when text is blank.
func (d *Dispatcher) AddWishlistItem(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	key, err := d.store.Append(ctx, d.path(models.WishlistPath), models.WishlistItem{Item: text})
	if err != nil {
		return "", unavailable("add wishlist item", err)
	}
	slog.Info("Wishlist item added", "key", key)
	return key, nil
}

// UpdateTripInfo replaces the trip info wholesale. Concurrent updates overwrite
// each other.
func (d *Dispatcher) UpdateTripInfo(ctx context.Context, info models.TripInfo) error {
	if err := d.store.Write(ctx, d.path(models.InfoPath), info); err != nil {
		return unavailable("update trip info", err)
	}
	slog.Info("Trip info updated", "name", info.Name, "budget", info.Budget)
	return nil
}

func (d *Dispatcher) remove(ctx context.Context, collection, id string) error {
	if !validKey(id) {
		slog.Debug("Ignoring delete with invalid key", "collection", collection, "key", id)
		return nil
	}
	if err := d.store.Delete(ctx, d.path(collection, id)); err != nil {
		return unavailable("delete from "+collection, err)
	}
	return nil
}

func (d *Dispatcher) toggle(ctx context.Context, collection, id string, current bool) error {
	if !validKey(id) {
		slog.Debug("Ignoring toggle with invalid key", "collection", collection, "key", id)
		return nil
	}
	if err := d.store.Write(ctx, d.path(collection, id, "checked"), !current); err != nil {
		return unavailable("toggle "+collection, err)
	}
	return nil
}
