package projection

import (
	"github.com/shopspring/decimal"

	"github.com/qqoqto/travel-planner/internal/models"
)

var hundred = decimal.NewFromInt(100)

// BudgetSummary is the spending position of a trip.
type BudgetSummary struct {
	Budget    decimal.Decimal
	Total     decimal.Decimal
	Remaining decimal.Decimal // Negative when over budget
	Currency  string

	// PercentUsed is total/budget as a rounded percentage. It can exceed 100.
	PercentUsed int64

	// Progress is PercentUsed clamped to [0, 100] for bar widths.
	Progress int64

	// HasBudget is false when the budget is zero or negative; both
	// percentages are then zero.
	HasBudget bool
}

// Summarize totals expenses against the trip budget.
func Summarize(info models.TripInfo, expenses []models.Expense) BudgetSummary {
	budget := decimal.NewFromFloat(info.Budget)
	total := TotalExpense(expenses)

	s := BudgetSummary{
		Budget:    budget,
		Total:     total,
		Remaining: budget.Sub(total),
		Currency:  info.Currency,
	}
	if !budget.IsPositive() {
		return s
	}

	s.HasBudget = true
	s.PercentUsed = total.Div(budget).Mul(hundred).Round(0).IntPart()
	s.Progress = min(max(s.PercentUsed, 0), 100)
	return s
}

// TotalExpense sums the amount of every expense.
func TotalExpense(expenses []models.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}
	return total
}

// CategorySpend is the total spent in one category.
type CategorySpend struct {
	Category models.Category
	Amount   decimal.Decimal
	Count    int
}

var categoryOrder = []models.Category{
	models.CategoryFood,
	models.CategoryTransport,
	models.CategoryHotel,
	models.CategoryShopping,
	models.CategoryTicket,
	models.CategoryOther,
}

// SpendByCategory breaks spending down by category, in the fixed category
// order. Categories without expenses are omitted; unknown categories are
// counted as other.
func SpendByCategory(expenses []models.Expense) []CategorySpend {
	sums := make(map[models.Category]*CategorySpend)
	for _, e := range expenses {
		c := e.Category
		if !isKnownCategory(c) {
			c = models.CategoryOther
		}
		if _, exists := sums[c]; !exists {
			sums[c] = &CategorySpend{Category: c, Amount: decimal.Zero}
		}
		sums[c].Amount = sums[c].Amount.Add(decimal.NewFromFloat(e.Amount))
		sums[c].Count++
	}

	var result []CategorySpend
	for _, c := range categoryOrder {
		if s, ok := sums[c]; ok {
			result = append(result, *s)
		}
	}
	return result
}

func isKnownCategory(c models.Category) bool {
	for _, k := range categoryOrder {
		if k == c {
			return true
		}
	}
	return false
}

// PayerSpend splits spending by who paid.
type PayerSpend struct {
	Me    decimal.Decimal
	Other decimal.Decimal
}

// SpendByPayer totals expenses per payer. Anything not paid by "me" counts as other.
func SpendByPayer(expenses []models.Expense) PayerSpend {
	s := PayerSpend{Me: decimal.Zero, Other: decimal.Zero}
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		if e.Payer == models.PayerMe {
			s.Me = s.Me.Add(amount)
		} else {
			s.Other = s.Other.Add(amount)
		}
	}
	return s
}
