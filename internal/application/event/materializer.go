package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainEvent "github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

var (
	ErrNotAccepted = errors.New("negotiation has not reached consensus")
	ErrNoSlot      = errors.New("negotiation has no proposed slot")
)

// Materializer derives the single Event of an accepted negotiation.
type Materializer struct {
	publisher domainEvent.Publisher
	logger    zerolog.Logger
}

// NewMaterializer creates a materializer publishing through publisher.
func NewMaterializer(publisher domainEvent.Publisher, logger zerolog.Logger) *Materializer {
	return &Materializer{
		publisher: publisher,
		logger:    logger.With().Str("service", "event").Logger(),
	}
}

// Build derives the event for n. The chosen option is the lowest-index slot
// and venue of the most recent round that proposed any.
func Build(n *negotiation.Negotiation, now time.Time) (*domainEvent.Event, error) {
	if n.State != negotiation.StateAccepted {
		return nil, ErrNotAccepted
	}
	slot, venue := n.LatestOptions()
	if slot == nil {
		return nil, ErrNoSlot
	}
	attendees := make([]string, 0, len(n.Participants))
	for _, p := range n.Participants {
		if p.Status == negotiation.ParticipantAccepted {
			attendees = append(attendees, p.UserID)
		}
	}
	id := n.ID
	e := &domainEvent.Event{
		ID:            uuid.New(),
		NegotiationID: &id,
		Title:         n.Title,
		StartsAt:      slot.StartsAt,
		EndsAt:        slot.EndsAt,
		Organizer:     n.Owner,
		Attendees:     attendees,
		CreatedAt:     now,
	}
	if venue != nil {
		e.VenueName = venue.Name
	}
	return e, nil
}

// Materialize stores the event for n through repo, which must belong to the
// transaction that commits the accepted state. created is false when the
// negotiation already produced an event; that event is returned unchanged.
func (m *Materializer) Materialize(ctx context.Context, repo domainEvent.Repository, n *negotiation.Negotiation, now time.Time) (*domainEvent.Event, bool, error) {
	existing, err := repo.GetByNegotiationID(ctx, n.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	e, err := Build(n, now)
	if err != nil {
		return nil, false, err
	}
	if err := repo.Create(ctx, e); err != nil {
		if errors.Is(err, domainEvent.ErrAlreadyExists) {
			existing, getErr := repo.GetByNegotiationID(ctx, n.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create event: %w", err)
	}
	return e, true, nil
}

// Publish hands a committed event to the publisher. Failures are logged; the
// event row is the source of truth and the publisher is best effort.
func (m *Materializer) Publish(ctx context.Context, e *domainEvent.Event) {
	if m.publisher == nil || e == nil {
		return
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.logger.Warn().Err(err).Str("event_id", e.ID.String()).Msg("failed to publish event")
		return
	}
	m.logger.Info().Str("event_id", e.ID.String()).Msg("event published")
}
