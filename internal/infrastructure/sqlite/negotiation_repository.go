package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/domain/negotiation"
)

const negotiationColumns = `n.id, n.owner_id, n.title, n.intent_category, n.state, n.round, n.agent_mode, n.expires_at, n.version, n.created_at, n.updated_at`

// NegotiationRepository implements negotiation.Repository.
type NegotiationRepository struct {
	q DBTX
}

func NewNegotiationRepository(q DBTX) *NegotiationRepository {
	return &NegotiationRepository{q: q}
}

func (r *NegotiationRepository) Create(ctx context.Context, n *negotiation.Negotiation) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO negotiations
		(id, owner_id, title, intent_category, state, round, agent_mode, expires_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID.String(), n.Owner, n.Title, n.IntentCategory, string(n.State), n.Round, n.AgentMode,
		nullableNanos(n.ExpiresAt), n.Version, toNanos(n.CreatedAt), toNanos(n.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.ErrAlreadyExists
		}
		return fmt.Errorf("insert negotiation: %w", err)
	}
	for i, p := range n.Participants {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO negotiation_participants (negotiation_id, user_id, position, status, responded_at)
			VALUES (?, ?, ?, ?, ?)
		`, n.ID.String(), p.UserID, i, string(p.Status), nullableNanos(p.RespondedAt)); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := r.AppendSlots(ctx, n.ID, n.Slots); err != nil {
		return err
	}
	return r.AppendVenues(ctx, n.ID, n.Venues)
}

func (r *NegotiationRepository) GetByID(ctx context.Context, id uuid.UUID) (*negotiation.Negotiation, error) {
	n, err := scanNegotiation(r.q.QueryRowContext(ctx, `SELECT `+negotiationColumns+` FROM negotiations n WHERE n.id = ?`, id.String()))
	if err != nil || n == nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, []*negotiation.Negotiation{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// GetForUpdate reads the row inside the caller's transaction. SQLite has no
// row locks; Update compares the version read here.
func (r *NegotiationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*negotiation.Negotiation, error) {
	return r.GetByID(ctx, id)
}

func (r *NegotiationRepository) Update(ctx context.Context, n *negotiation.Negotiation) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE negotiations
		SET state = ?, round = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, string(n.State), n.Round, toNanos(n.UpdatedAt), n.ID.String(), n.Version)
	if err != nil {
		return fmt.Errorf("update negotiation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update negotiation rows affected: %w", err)
	}
	if affected == 0 {
		return negotiation.ErrConcurrentUpdate
	}
	n.Version++
	return nil
}

func (r *NegotiationRepository) UpdateParticipant(ctx context.Context, negotiationID uuid.UUID, p negotiation.Participant) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE negotiation_participants
		SET status = ?, responded_at = ?
		WHERE negotiation_id = ? AND user_id = ?
	`, string(p.Status), nullableNanos(p.RespondedAt), negotiationID.String(), p.UserID)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update participant rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("participant %s not found in negotiation %s", p.UserID, negotiationID)
	}
	return nil
}

func (r *NegotiationRepository) AppendSlots(ctx context.Context, negotiationID uuid.UUID, slots []negotiation.Slot) error {
	for _, s := range slots {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO negotiation_slots (negotiation_id, idx, starts_at, ends_at, proposed_by, round, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, negotiationID.String(), s.Index, toNanos(s.StartsAt), toNanos(s.EndsAt), s.ProposedBy, s.Round, toNanos(s.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return negotiation.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert slot: %w", err)
		}
	}
	return nil
}

func (r *NegotiationRepository) AppendVenues(ctx context.Context, negotiationID uuid.UUID, venues []negotiation.Venue) error {
	for _, v := range venues {
		var details any
		if len(v.Details) > 0 {
			details = []byte(v.Details)
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO negotiation_venues (negotiation_id, idx, name, details, proposed_by, round, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, negotiationID.String(), v.Index, v.Name, details, v.ProposedBy, v.Round, toNanos(v.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return negotiation.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert venue: %w", err)
		}
	}
	return nil
}

func (r *NegotiationRepository) List(ctx context.Context, filter negotiation.Filter) ([]*negotiation.Negotiation, error) {
	where := []string{`EXISTS (SELECT 1 FROM negotiation_participants p WHERE p.negotiation_id = n.id AND p.user_id = ?)`}
	args := []any{filter.UserID}
	if filter.Role != nil {
		switch *filter.Role {
		case negotiation.RoleOwner:
			where = append(where, `n.owner_id = ?`)
			args = append(args, filter.UserID)
		case negotiation.RoleParticipant:
			where = append(where, `n.owner_id <> ?`)
			args = append(args, filter.UserID)
		}
	}
	if filter.State != nil {
		where = append(where, `n.state = ?`)
		args = append(args, string(*filter.State))
	}
	if filter.After != nil {
		where = append(where, `(n.updated_at < ? OR (n.updated_at = ? AND n.id < ?))`)
		at := toNanos(filter.After.UpdatedAt)
		args = append(args, at, at, filter.After.ID.String())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+negotiationColumns+`
		FROM negotiations n
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY n.updated_at DESC, n.id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list negotiations: %w", err)
	}
	var out []*negotiation.Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NegotiationRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id
		FROM negotiations
		WHERE state IN ('draft', 'awaiting_invites', 'awaiting_replies')
		  AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC, id ASC
		LIMIT ?
	`, toNanos(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable negotiations: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse negotiation id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *NegotiationRepository) RecordTransition(ctx context.Context, t *negotiation.Transition) error {
	var from any
	if t.FromState != nil {
		from = string(*t.FromState)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO negotiation_transitions (id, negotiation_id, from_state, to_state, actor, action, round, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID.String(), t.NegotiationID.String(), from, string(t.ToState), t.Actor, t.Action, t.Round, toNanos(t.At))
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (r *NegotiationRepository) ListTransitions(ctx context.Context, negotiationID uuid.UUID) ([]*negotiation.Transition, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, negotiation_id, from_state, to_state, actor, action, round, at
		FROM negotiation_transitions
		WHERE negotiation_id = ?
		ORDER BY at ASC, rowid ASC
	`, negotiationID.String())
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []*negotiation.Transition
	for rows.Next() {
		var (
			t       negotiation.Transition
			id, nid string
			from    sql.NullString
			to      string
			at      int64
		)
		if err := rows.Scan(&id, &nid, &from, &to, &t.Actor, &t.Action, &t.Round, &at); err != nil {
			return nil, err
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if t.NegotiationID, err = uuid.Parse(nid); err != nil {
			return nil, err
		}
		if from.Valid {
			s := negotiation.State(from.String)
			t.FromState = &s
		}
		t.ToState = negotiation.State(to)
		t.At = fromNanos(at)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// loadChildren fills participants, slots and venues for ns.
func (r *NegotiationRepository) loadChildren(ctx context.Context, ns []*negotiation.Negotiation) error {
	if len(ns) == 0 {
		return nil
	}
	byID := make(map[string]*negotiation.Negotiation, len(ns))
	args := make([]any, 0, len(ns))
	for _, n := range ns {
		byID[n.ID.String()] = n
		args = append(args, n.ID.String())
		n.Participants, n.Slots, n.Venues = nil, nil, nil
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(ns)), ",") + ")"

	rows, err := r.q.QueryContext(ctx, `
		SELECT negotiation_id, user_id, status, responded_at
		FROM negotiation_participants
		WHERE negotiation_id IN `+in+`
		ORDER BY negotiation_id, position ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	for rows.Next() {
		var (
			id, status string
			p          negotiation.Participant
			responded  sql.NullInt64
		)
		if err := rows.Scan(&id, &p.UserID, &status, &responded); err != nil {
			rows.Close()
			return err
		}
		p.Status = negotiation.ParticipantStatus(status)
		p.RespondedAt = timePtr(responded)
		byID[id].Participants = append(byID[id].Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.QueryContext(ctx, `
		SELECT negotiation_id, idx, starts_at, ends_at, proposed_by, round, created_at
		FROM negotiation_slots
		WHERE negotiation_id IN `+in+`
		ORDER BY negotiation_id, idx ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var (
			id                      string
			s                       negotiation.Slot
			starts, ends, createdAt int64
		)
		if err := rows.Scan(&id, &s.Index, &starts, &ends, &s.ProposedBy, &s.Round, &createdAt); err != nil {
			rows.Close()
			return err
		}
		s.StartsAt, s.EndsAt, s.CreatedAt = fromNanos(starts), fromNanos(ends), fromNanos(createdAt)
		byID[id].Slots = append(byID[id].Slots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.QueryContext(ctx, `
		SELECT negotiation_id, idx, name, details, proposed_by, round, created_at
		FROM negotiation_venues
		WHERE negotiation_id IN `+in+`
		ORDER BY negotiation_id, idx ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("load venues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id        string
			v         negotiation.Venue
			details   []byte
			createdAt int64
		)
		if err := rows.Scan(&id, &v.Index, &v.Name, &details, &v.ProposedBy, &v.Round, &createdAt); err != nil {
			return err
		}
		if len(details) > 0 {
			v.Details = json.RawMessage(details)
		}
		v.CreatedAt = fromNanos(createdAt)
		byID[id].Venues = append(byID[id].Venues, v)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNegotiation(row scanner) (*negotiation.Negotiation, error) {
	var (
		n                    negotiation.Negotiation
		id, state            string
		expires              sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &n.Owner, &n.Title, &n.IntentCategory, &state, &n.Round, &n.AgentMode, &expires, &n.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse negotiation id: %w", err)
	}
	n.ID = parsed
	n.State = negotiation.State(state)
	n.ExpiresAt = timePtr(expires)
	n.CreatedAt = fromNanos(createdAt)
	n.UpdatedAt = fromNanos(updatedAt)
	return &n, nil
}
