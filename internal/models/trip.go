package models

import "path"

// RootPath is the top-level node holding every shared document.
const RootPath = "trips"

// Collection names under a document root.
const (
	InfoPath      = "info"
	PlacesPath    = "places"
	ExpensesPath  = "expenses"
	ChecklistPath = "checklist"
	WishlistPath  = "wishlist"
	MembersPath   = "members"
)

// DefaultTotalDays is the number of selectable itinerary days.
// It is a configuration value and is not derived from TripInfo dates.
const DefaultTotalDays = 7

// DocumentPath returns the remote path of a document or one of its descendants.
func DocumentPath(documentID string, parts ...string) string {
	return path.Join(append([]string{RootPath, documentID}, parts...)...)
}

// TripInfo is the singleton describing the trip itself.
// A save replaces the whole value; there is no per-field merge.
type TripInfo struct {
	// Name is the display title of the trip.
	Name string `json:"name"`

	// StartDate and EndDate are free-form display strings (e.g. "2026/01/30").
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`

	// Budget is the planned total spend in Currency.
	Budget float64 `json:"budget"`

	// Currency is the symbol shown next to amounts.
	Currency string `json:"currency"`
}

// DefaultTripInfo is shown until the document's info node exists.
func DefaultTripInfo() TripInfo {
	return TripInfo{
		Name:      "2026 大阪京都之旅",
		StartDate: "2026/01/30",
		EndDate:   "2026/02/05",
		Budget:    100000,
		Currency:  "¥",
	}
}

// Identity is the local participant's resolved identity for one session.
// It is built once by the identity package and handed to every component.
type Identity struct {
	// ParticipantID is the stable per-device identifier (e.g. "user_k3j9x0a1b").
	ParticipantID string

	// DocumentID is the active shared document (e.g. "trip_p0q8w7e6r").
	DocumentID string

	// DisplayName is the participant's chosen name; empty until the naming flow completes.
	DisplayName string
}

// Named reports whether the naming flow has completed.
func (i Identity) Named() bool {
	return i.DisplayName != ""
}
