// Package projection derives display values from synchronized collections.
// Every function is pure: the same inputs always give the same output.
package projection

import (
	"cmp"
	"slices"

	"github.com/qqoqto/travel-planner/internal/models"
)

// AllDays selects every day of the itinerary.
const AllDays = 0

// ItineraryRow is one place in display order.
type ItineraryRow struct {
	Place models.Place

	// DayHeader is set on the first row of each day when viewing all days.
	DayHeader bool
}

// Itinerary filters places to selectedDay (AllDays keeps everything) and
// orders them by day, then time. Unscheduled places come first within a day
// and ties keep their input order.
func Itinerary(places []models.Place, selectedDay int) []ItineraryRow {
	filtered := make([]models.Place, 0, len(places))
	for _, p := range places {
		if selectedDay == AllDays || p.Day == selectedDay {
			filtered = append(filtered, p)
		}
	}

	// "HH:MM" compares correctly as text and "" sorts before any time.
	slices.SortStableFunc(filtered, func(a, b models.Place) int {
		return cmp.Or(cmp.Compare(a.Day, b.Day), cmp.Compare(a.Time, b.Time))
	})

	rows := make([]ItineraryRow, len(filtered))
	for i, p := range filtered {
		rows[i] = ItineraryRow{
			Place:     p,
			DayHeader: selectedDay == AllDays && (i == 0 || filtered[i-1].Day != p.Day),
		}
	}
	return rows
}

// Days lists the selectable day filters: AllDays followed by 1..totalDays.
func Days(totalDays int) []int {
	days := make([]int, 0, totalDays+1)
	days = append(days, AllDays)
	for d := 1; d <= totalDays; d++ {
		days = append(days, d)
	}
	return days
}
