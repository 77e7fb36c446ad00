package models

// Payer records who paid an expense.
type Payer string

const (
	PayerMe    Payer = "me"
	PayerOther Payer = "other"
)

// PaymentMethod records how an expense was paid.
type PaymentMethod string

const (
	MethodCash PaymentMethod = "cash"
	MethodCard PaymentMethod = "card"
)

// Category groups expenses for display and breakdowns.
type Category string

const (
	CategoryFood      Category = "food"
	CategoryTransport Category = "transport"
	CategoryHotel     Category = "hotel"
	CategoryShopping  Category = "shopping"
	CategoryTicket    Category = "ticket"
	CategoryOther     Category = "other"
)

// Expense is one spending record. Expenses are never edited in place.
type Expense struct {
	// ID is the remote key assigned on insert.
	ID string `json:"-"`

	// Item describes what was bought.
	Item string `json:"item"`

	// Amount is stored as a number, coerced from the draft text.
	Amount float64 `json:"amount"`

	Payer    Payer         `json:"payer"`
	Method   PaymentMethod `json:"method"`
	Category Category      `json:"category"`

	// AddedBy is the display name of the participant who recorded it.
	AddedBy string `json:"addedBy"`
}

// SetID injects the remote key.
func (e *Expense) SetID(id string) { e.ID = id }

// ExpenseDraft is the caller-owned form state for a new expense.
// Amount is kept as entered and coerced to a number on add. Empty Payer,
// Method and Category are filled from NewExpenseDraft.
type ExpenseDraft struct {
	Item     string        `validate:"required"`
	Amount   string        `validate:"required"`
	Payer    Payer         `validate:"required,oneof=me other"`
	Method   PaymentMethod `validate:"required,oneof=cash card"`
	Category Category      `validate:"required,oneof=food transport hotel shopping ticket other"`
}

// NewExpenseDraft returns the empty form: paid by me, in cash, for food.
func NewExpenseDraft() ExpenseDraft {
	return ExpenseDraft{Payer: PayerMe, Method: MethodCash, Category: CategoryFood}
}
