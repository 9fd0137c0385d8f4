package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/domain/negotiation"
)

// IdempotencyRepository implements negotiation.IdempotencyRepository.
type IdempotencyRepository struct {
	q DBTX
}

func NewIdempotencyRepository(q DBTX) *IdempotencyRepository {
	return &IdempotencyRepository{q: q}
}

func (r *IdempotencyRepository) Get(ctx context.Context, userID, key string) (*negotiation.IdempotencyRecord, error) {
	var (
		rec       negotiation.IdempotencyRecord
		nid       string
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, key, fingerprint, negotiation_id, created_at
		FROM idempotency_keys
		WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&rec.UserID, &rec.Key, &rec.Fingerprint, &nid, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if rec.NegotiationID, err = uuid.Parse(nid); err != nil {
		return nil, fmt.Errorf("parse negotiation id: %w", err)
	}
	rec.CreatedAt = fromNanos(createdAt)
	return &rec, nil
}

func (r *IdempotencyRepository) Put(ctx context.Context, rec *negotiation.IdempotencyRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (user_id, key, fingerprint, negotiation_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.UserID, rec.Key, rec.Fingerprint, rec.NegotiationID.String(), toNanos(rec.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.ErrConcurrentUpdate
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}
