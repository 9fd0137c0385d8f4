package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/accord-hub/accord/internal/domain/event"
)

// EventRepository implements event.Repository.
type EventRepository struct {
	q DBTX
}

func NewEventRepository(q DBTX) *EventRepository {
	return &EventRepository{q: q}
}

func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	attendees := e.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO events
		(id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.NegotiationID, e.Title, e.StartsAt, e.EndsAt, e.VenueName, e.Organizer, attendees, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return event.ErrAlreadyExists
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, eventID uuid.UUID) (*event.Event, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at
		FROM events
		WHERE id=$1
	`, eventID)
	return scanEvent(row)
}

func (r *EventRepository) GetByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*event.Event, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at
		FROM events
		WHERE negotiation_id=$1
	`, negotiationID)
	return scanEvent(row)
}

func scanEvent(row pgx.Row) (*event.Event, error) {
	var e event.Event
	if err := row.Scan(&e.ID, &e.NegotiationID, &e.Title, &e.StartsAt, &e.EndsAt, &e.VenueName, &e.Organizer, &e.Attendees, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.StartsAt = e.StartsAt.UTC()
	e.EndsAt = e.EndsAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
