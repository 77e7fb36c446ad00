package models

// PlaceType classifies an itinerary stop.
type PlaceType string

const (
	PlaceSpot     PlaceType = "spot"
	PlaceFood     PlaceType = "food"
	PlaceShopping PlaceType = "shopping"
	PlaceHotel    PlaceType = "hotel"
)

// Place is one stop on the itinerary.
// Display order is not stored; see projection.Itinerary.
type Place struct {
	// ID is the remote key assigned on insert.
	ID string `json:"-"`

	// Day is the 1-based trip day this stop belongs to.
	Day int `json:"day"`

	// Time is "HH:MM" or empty when unscheduled.
	Time string `json:"time"`

	// Name is required for a place to be valid.
	Name string `json:"name"`

	Type      PlaceType `json:"type"`
	Address   string    `json:"address"`
	Transport string    `json:"transport"`
	Duration  string    `json:"duration"`

	// AddedBy is the display name of the participant who created the stop.
	AddedBy string `json:"addedBy"`
}

// SetID injects the remote key.
func (p *Place) SetID(id string) { p.ID = id }

// PlaceDraft is the caller-owned form state for a new place.
// A zero Day or empty Type is filled from NewPlaceDraft on add.
type PlaceDraft struct {
	Day       int       `validate:"min=1"`
	Time      string    `validate:"omitempty,clock"`
	Name      string    `validate:"required"`
	Type      PlaceType `validate:"required,oneof=spot food shopping hotel"`
	Address   string
	Transport string
	Duration  string
}

// NewPlaceDraft returns the empty form: day 1, type spot.
func NewPlaceDraft() PlaceDraft {
	return PlaceDraft{Day: 1, Type: PlaceSpot}
}
