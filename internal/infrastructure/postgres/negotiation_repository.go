package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/accord-hub/accord/internal/domain/negotiation"
)

const negotiationColumns = `id, owner_id, title, intent_category, state, round, agent_mode, expires_at, version, created_at, updated_at`

// NegotiationRepository implements negotiation.Repository.
type NegotiationRepository struct {
	q DBTX
}

func NewNegotiationRepository(q DBTX) *NegotiationRepository {
	return &NegotiationRepository{q: q}
}

func (r *NegotiationRepository) Create(ctx context.Context, n *negotiation.Negotiation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO negotiations
		(id, owner_id, title, intent_category, state, round, agent_mode, expires_at, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, n.ID, n.Owner, n.Title, n.IntentCategory, n.State, n.Round, n.AgentMode, n.ExpiresAt, n.Version, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.ErrAlreadyExists
		}
		return fmt.Errorf("insert negotiation: %w", err)
	}
	for i, p := range n.Participants {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO negotiation_participants (negotiation_id, user_id, position, status, responded_at)
			VALUES ($1,$2,$3,$4,$5)
		`, n.ID, p.UserID, i, p.Status, p.RespondedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := r.AppendSlots(ctx, n.ID, n.Slots); err != nil {
		return err
	}
	return r.AppendVenues(ctx, n.ID, n.Venues)
}

func (r *NegotiationRepository) GetByID(ctx context.Context, id uuid.UUID) (*negotiation.Negotiation, error) {
	return r.get(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE id=$1`, id)
}

func (r *NegotiationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*negotiation.Negotiation, error) {
	return r.get(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE id=$1 FOR UPDATE`, id)
}

func (r *NegotiationRepository) get(ctx context.Context, query string, id uuid.UUID) (*negotiation.Negotiation, error) {
	n, err := scanNegotiation(r.q.QueryRow(ctx, query, id))
	if err != nil || n == nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, []*negotiation.Negotiation{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// Update persists state, round and updated_at if the row still carries the
// version that was read.
func (r *NegotiationRepository) Update(ctx context.Context, n *negotiation.Negotiation) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE negotiations
		SET state=$1, round=$2, updated_at=$3, version=version+1
		WHERE id=$4 AND version=$5
	`, n.State, n.Round, n.UpdatedAt, n.ID, n.Version)
	if err != nil {
		return fmt.Errorf("update negotiation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return negotiation.ErrConcurrentUpdate
	}
	n.Version++
	return nil
}

func (r *NegotiationRepository) UpdateParticipant(ctx context.Context, negotiationID uuid.UUID, p negotiation.Participant) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE negotiation_participants
		SET status=$1, responded_at=$2
		WHERE negotiation_id=$3 AND user_id=$4
	`, p.Status, p.RespondedAt, negotiationID, p.UserID)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s not found in negotiation %s", p.UserID, negotiationID)
	}
	return nil
}

func (r *NegotiationRepository) AppendSlots(ctx context.Context, negotiationID uuid.UUID, slots []negotiation.Slot) error {
	for _, s := range slots {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO negotiation_slots (negotiation_id, idx, starts_at, ends_at, proposed_by, round, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, negotiationID, s.Index, s.StartsAt, s.EndsAt, s.ProposedBy, s.Round, s.CreatedAt); err != nil {
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
		if _, err := r.q.Exec(ctx, `
			INSERT INTO negotiation_venues (negotiation_id, idx, name, details, proposed_by, round, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, negotiationID, v.Index, v.Name, nullableJSON(v.Details), v.ProposedBy, v.Round, v.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return negotiation.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert venue: %w", err)
		}
	}
	return nil
}

func (r *NegotiationRepository) List(ctx context.Context, filter negotiation.Filter) ([]*negotiation.Negotiation, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	user := arg(filter.UserID)
	where = append(where, `EXISTS (SELECT 1 FROM negotiation_participants p WHERE p.negotiation_id = n.id AND p.user_id = `+user+`)`)
	if filter.Role != nil {
		switch *filter.Role {
		case negotiation.RoleOwner:
			where = append(where, `n.owner_id = `+user)
		case negotiation.RoleParticipant:
			where = append(where, `n.owner_id <> `+user)
		}
	}
	if filter.State != nil {
		where = append(where, `n.state = `+arg(*filter.State))
	}
	if filter.After != nil {
		where = append(where, `(n.updated_at, n.id) < (`+arg(filter.After.UpdatedAt)+`, `+arg(filter.After.ID)+`)`)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT n.` + strings.ReplaceAll(negotiationColumns, ", ", ", n.") + `
		FROM negotiations n
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY n.updated_at DESC, n.id DESC
		LIMIT ` + arg(limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*negotiation.Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NegotiationRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id
		FROM negotiations
		WHERE state IN ('draft', 'awaiting_invites', 'awaiting_replies')
		  AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC, id ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *NegotiationRepository) RecordTransition(ctx context.Context, t *negotiation.Transition) error {
	var from *string
	if t.FromState != nil {
		s := string(*t.FromState)
		from = &s
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO negotiation_transitions (id, negotiation_id, from_state, to_state, actor, action, round, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.NegotiationID, from, t.ToState, t.Actor, t.Action, t.Round, t.At)
	return err
}

func (r *NegotiationRepository) ListTransitions(ctx context.Context, negotiationID uuid.UUID) ([]*negotiation.Transition, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, negotiation_id, from_state, to_state, actor, action, round, at
		FROM negotiation_transitions
		WHERE negotiation_id=$1
		ORDER BY at ASC, id ASC
	`, negotiationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*negotiation.Transition
	for rows.Next() {
		var (
			t    negotiation.Transition
			from *string
		)
		if err := rows.Scan(&t.ID, &t.NegotiationID, &from, &t.ToState, &t.Actor, &t.Action, &t.Round, &t.At); err != nil {
			return nil, err
		}
		if from != nil {
			s := negotiation.State(*from)
			t.FromState = &s
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// loadChildren fills participants, slots and venues for ns.
func (r *NegotiationRepository) loadChildren(ctx context.Context, ns []*negotiation.Negotiation) error {
	if len(ns) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*negotiation.Negotiation, len(ns))
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		byID[n.ID] = n
		ids = append(ids, n.ID.String())
		n.Participants, n.Slots, n.Venues = nil, nil, nil
	}

	rows, err := r.q.Query(ctx, `
		SELECT negotiation_id, user_id, status, responded_at
		FROM negotiation_participants
		WHERE negotiation_id = ANY($1::uuid[])
		ORDER BY negotiation_id, position ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	for rows.Next() {
		var (
			id uuid.UUID
			p  negotiation.Participant
		)
		if err := rows.Scan(&id, &p.UserID, &p.Status, &p.RespondedAt); err != nil {
			rows.Close()
			return err
		}
		byID[id].Participants = append(byID[id].Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.Query(ctx, `
		SELECT negotiation_id, idx, starts_at, ends_at, proposed_by, round, created_at
		FROM negotiation_slots
		WHERE negotiation_id = ANY($1::uuid[])
		ORDER BY negotiation_id, idx ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var (
			id uuid.UUID
			s  negotiation.Slot
		)
		if err := rows.Scan(&id, &s.Index, &s.StartsAt, &s.EndsAt, &s.ProposedBy, &s.Round, &s.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		byID[id].Slots = append(byID[id].Slots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.Query(ctx, `
		SELECT negotiation_id, idx, name, details, proposed_by, round, created_at
		FROM negotiation_venues
		WHERE negotiation_id = ANY($1::uuid[])
		ORDER BY negotiation_id, idx ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("load venues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id      uuid.UUID
			v       negotiation.Venue
			details []byte
		)
		if err := rows.Scan(&id, &v.Index, &v.Name, &details, &v.ProposedBy, &v.Round, &v.CreatedAt); err != nil {
			return err
		}
		if len(details) > 0 {
			v.Details = json.RawMessage(details)
		}
		byID[id].Venues = append(byID[id].Venues, v)
	}
	return rows.Err()
}

func scanNegotiation(row pgx.Row) (*negotiation.Negotiation, error) {
	var n negotiation.Negotiation
	if err := row.Scan(&n.ID, &n.Owner, &n.Title, &n.IntentCategory, &n.State, &n.Round, &n.AgentMode, &n.ExpiresAt, &n.Version, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if n.ExpiresAt != nil {
		exp := n.ExpiresAt.UTC()
		n.ExpiresAt = &exp
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
