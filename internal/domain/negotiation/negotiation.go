package negotiation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus represents a participant's response.
type ParticipantStatus string

const (
	ParticipantOrganizer ParticipantStatus = "organizer"
	ParticipantInvited   ParticipantStatus = "invited"
	ParticipantAccepted  ParticipantStatus = "accepted"
	ParticipantDeclined  ParticipantStatus = "declined"
	ParticipantCountered ParticipantStatus = "countered"
)

// Action is a participant reply action.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionCounter Action = "counter"
)

// Valid reports whether a is a known reply action.
func (a Action) Valid() bool {
	switch a {
	case ActionAccept, ActionDecline, ActionCounter:
		return true
	}
	return false
}

// ResultingStatus is the participant status an action produces.
func (a Action) ResultingStatus() ParticipantStatus {
	switch a {
	case ActionAccept:
		return ParticipantAccepted
	case ActionDecline:
		return ParticipantDeclined
	default:
		return ParticipantCountered
	}
}

var (
	// ErrConcurrentUpdate is returned by Repository.Update when the row changed
	// since it was read.
	ErrConcurrentUpdate = errors.New("negotiation was modified concurrently")
	// ErrAlreadyExists is returned by Repository.Create for a duplicate id.
	ErrAlreadyExists = errors.New("negotiation already exists")
)

// Negotiation is a scheduling coordination session.
type Negotiation struct {
	ID             uuid.UUID     `json:"id"`
	Owner          string        `json:"owner"`
	Title          string        `json:"title"`
	IntentCategory string        `json:"intentCategory"`
	State          State         `json:"state"`
	Round          int           `json:"round"`
	AgentMode      bool          `json:"agentMode"`
	ExpiresAt      *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Version        int64         `json:"version"`
	Participants   []Participant `json:"participants"`
	Slots          []Slot        `json:"slots"`
	Venues         []Venue       `json:"venues"`
}

// Participant is one user's membership and response record.
type Participant struct {
	UserID      string            `json:"userId"`
	Status      ParticipantStatus `json:"status"`
	RespondedAt *time.Time        `json:"respondedAt,omitempty"`
}

// Slot is a candidate time window.
type Slot struct {
	Index      int       `json:"index"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	ProposedBy string    `json:"proposedBy"`
	Round      int       `json:"round"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Venue is a candidate location. Details are opaque to the engine.
type Venue struct {
	Index      int             `json:"index"`
	Name       string          `json:"name"`
	Details    json.RawMessage `json:"details,omitempty"`
	ProposedBy string          `json:"proposedBy"`
	Round      int             `json:"round"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SlotInput is a proposed time window before indexing.
type SlotInput struct {
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// VenueInput is a proposed location before indexing.
type VenueInput struct {
	Name    string          `json:"name"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Participant returns the record for userID, or nil.
func (n *Negotiation) Participant(userID string) *Participant {
	for i := range n.Participants {
		if n.Participants[i].UserID == userID {
			return &n.Participants[i]
		}
	}
	return nil
}

// IsOwner reports whether userID created the negotiation.
func (n *Negotiation) IsOwner(userID string) bool {
	return userID != "" && n.Owner == userID
}

// IsExpired reports whether the deadline has passed at now.
func (n *Negotiation) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// NextSlotIndex returns an index strictly greater than every existing slot index.
func (n *Negotiation) NextSlotIndex() int {
	next := 0
	for _, s := range n.Slots {
		if s.Index >= next {
			next = s.Index + 1
		}
	}
	return next
}

// NextVenueIndex returns an index strictly greater than every existing venue index.
func (n *Negotiation) NextVenueIndex() int {
	next := 0
	for _, v := range n.Venues {
		if v.Index >= next {
			next = v.Index + 1
		}
	}
	return next
}

// BuildSlots indexes inputs after the existing slots.
func (n *Negotiation) BuildSlots(in []SlotInput, proposedBy string, round int, now time.Time) []Slot {
	next := n.NextSlotIndex()
	out := make([]Slot, 0, len(in))
	for i, s := range in {
		out = append(out, Slot{
			Index:      next + i,
			StartsAt:   s.StartsAt.UTC(),
			EndsAt:     s.EndsAt.UTC(),
			ProposedBy: proposedBy,
			Round:      round,
			CreatedAt:  now,
		})
	}
	return out
}

// BuildVenues indexes inputs after the existing venues.
func (n *Negotiation) BuildVenues(in []VenueInput, proposedBy string, round int, now time.Time) []Venue {
	next := n.NextVenueIndex()
	out := make([]Venue, 0, len(in))
	for i, v := range in {
		out = append(out, Venue{
			Index:      next + i,
			Name:       v.Name,
			Details:    v.Details,
			ProposedBy: proposedBy,
			Round:      round,
			CreatedAt:  now,
		})
	}
	return out
}

// LatestOptions returns the lowest-index slot and venue of the most recent
// round that proposed any. Either may be nil when none exist.
func (n *Negotiation) LatestOptions() (*Slot, *Venue) {
	var slot *Slot
	for i := range n.Slots {
		s := &n.Slots[i]
		if slot == nil || s.Round > slot.Round || (s.Round == slot.Round && s.Index < slot.Index) {
			slot = s
		}
	}
	var venue *Venue
	for i := range n.Venues {
		v := &n.Venues[i]
		if venue == nil || v.Round > venue.Round || (v.Round == venue.Round && v.Index < venue.Index) {
			venue = v
		}
	}
	return slot, venue
}

// Transition is an append-only record of a state change.
type Transition struct {
	ID            uuid.UUID `json:"id"`
	NegotiationID uuid.UUID `json:"negotiationId"`
	FromState     *State    `json:"fromState,omitempty"`
	ToState       State     `json:"toState"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	Round         int       `json:"round"`
	At            time.Time `json:"at"`
}

// NewTransition creates a transition record.
func NewTransition(negotiationID uuid.UUID, from *State, to State, actor, action string, round int, at time.Time) *Transition {
	return &Transition{
		ID:            uuid.New(),
		NegotiationID: negotiationID,
		FromState:     from,
		ToState:       to,
		Actor:         actor,
		Action:        action,
		Round:         round,
		At:            at,
	}
}
