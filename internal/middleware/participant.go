package middleware

import (
	"context"

	"github.com/qqoqto/travel-planner/pkg/treeapi"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ParticipantKey is the context key for the caller's participant ID.
const ParticipantKey contextKey = "participant_id"

// GetParticipantID extracts the participant ID from the context.
// Returns empty string if not found.
func GetParticipantID(ctx context.Context) string {
	id, _ := ctx.Value(ParticipantKey).(string)
	return id
}

// WithParticipantID returns a copy of ctx carrying id.
func WithParticipantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ParticipantKey, id)
}

// participantFromHeader reads the participant header. The value is
// self-declared and only used to attribute logs.
func participantFromHeader(h interface{ Get(string) string }) string {
	return h.Get(treeapi.ParticipantHeader)
}
