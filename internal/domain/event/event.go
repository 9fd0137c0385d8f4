package event

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyExists is returned when a negotiation already produced an event.
var ErrAlreadyExists = errors.New("event already materialized for negotiation")

// Event is the finalized plan derived once a negotiation reaches consensus.
// NegotiationID is nulled if the negotiation is ever deleted.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	NegotiationID *uuid.UUID `json:"negotiationId,omitempty"`
	Title         string     `json:"title"`
	StartsAt      time.Time  `json:"startsAt"`
	EndsAt        time.Time  `json:"endsAt"`
	VenueName     string     `json:"venueName,omitempty"`
	Organizer     string     `json:"organizer"`
	Attendees     []string   `json:"attendees"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasAttendee reports whether userID organizes or attends the event.
func (e *Event) HasAttendee(userID string) bool {
	if userID == "" {
		return false
	}
	if e.Organizer == userID {
		return true
	}
	for _, a := range e.Attendees {
		if a == userID {
			return true
		}
	}
	return false
}
