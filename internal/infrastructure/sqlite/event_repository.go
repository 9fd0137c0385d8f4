package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

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
	rawAttendees, err := json.Marshal(attendees)
	if err != nil {
		return fmt.Errorf("marshal attendees: %w", err)
	}
	var negotiationID any
	if e.NegotiationID != nil {
		negotiationID = e.NegotiationID.String()
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO events
		(id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), negotiationID, e.Title, toNanos(e.StartsAt), toNanos(e.EndsAt), e.VenueName, e.Organizer, string(rawAttendees), toNanos(e.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return event.ErrAlreadyExists
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, eventID uuid.UUID) (*event.Event, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at
		FROM events
		WHERE id = ?
	`, eventID.String())
	return scanEvent(row)
}

func (r *EventRepository) GetByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*event.Event, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, negotiation_id, title, starts_at, ends_at, venue_name, organizer, attendees, created_at
		FROM events
		WHERE negotiation_id = ?
	`, negotiationID.String())
	return scanEvent(row)
}

func scanEvent(row scanner) (*event.Event, error) {
	var (
		e                       event.Event
		id, attendees           string
		negotiationID           sql.NullString
		starts, ends, createdAt int64
	)
	if err := row.Scan(&id, &negotiationID, &e.Title, &starts, &ends, &e.VenueName, &e.Organizer, &attendees, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	e.ID = parsed
	if negotiationID.Valid {
		nid, err := uuid.Parse(negotiationID.String)
		if err != nil {
			return nil, fmt.Errorf("parse negotiation id: %w", err)
		}
		e.NegotiationID = &nid
	}
	if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
		return nil, fmt.Errorf("unmarshal attendees: %w", err)
	}
	e.StartsAt, e.EndsAt, e.CreatedAt = fromNanos(starts), fromNanos(ends), fromNanos(createdAt)
	return &e, nil
}
