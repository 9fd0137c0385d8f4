package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

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
	var rec negotiation.IdempotencyRecord
	err := r.q.QueryRow(ctx, `
		SELECT user_id, key, fingerprint, negotiation_id, created_at
		FROM idempotency_keys
		WHERE user_id=$1 AND key=$2
	`, userID, key).Scan(&rec.UserID, &rec.Key, &rec.Fingerprint, &rec.NegotiationID, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Put stores rec. A key claimed by a concurrent request reports
// ErrConcurrentUpdate so the caller re-reads it.
func (r *IdempotencyRepository) Put(ctx context.Context, rec *negotiation.IdempotencyRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, fingerprint, negotiation_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rec.UserID, rec.Key, rec.Fingerprint, rec.NegotiationID, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.ErrConcurrentUpdate
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}
