package models

// Member is a participant's presence record, keyed by participant ID.
// Records are created on first announce and never deleted.
type Member struct {
	// ID is the participant ID (the record's key), not a store-generated key.
	ID string `json:"-"`

	Name string `json:"name"`

	// Avatar and Color are cosmetic and re-randomized every session.
	// The offline record written on departure omits them.
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`

	Online bool `json:"online"`

	// LastSeen is a Unix timestamp in milliseconds.
	LastSeen int64 `json:"lastSeen"`
}

// SetID injects the participant ID.
func (m *Member) SetID(id string) { m.ID = id }

// PresenceState is a participant's presence as observed through the members collection.
type PresenceState int

const (
	// PresenceUnknown means there is no member record.
	PresenceUnknown PresenceState = iota
	PresenceOnline
	PresenceOffline
)

func (s PresenceState) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresenceOffline:
		return "offline"
	default:
		return "unknown"
	}
}
