package app

import (
	"time"

	"github.com/google/uuid"
)

func newEvent(typ, matchID string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		MatchID:    matchID,
		Payload:    payload,
		OccurredAt: at.UTC(),
	}
}
