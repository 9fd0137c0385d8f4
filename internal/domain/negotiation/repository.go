package negotiation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role filters listings by the caller's relationship to a negotiation.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleParticipant Role = "participant"
)

// Filter controls negotiation listing. Results are ordered by
// updated_at desc, id desc; After continues past a previous page.
type Filter struct {
	UserID string
	State  *State
	Role   *Role
	After  *Cursor
	Limit  int
}

// Repository defines persistence for negotiations and their child rows.
//
// GetForUpdate must be called inside a transaction; implementations either
// lock the row or remember the version so Update can compare-and-swap.
type Repository interface {
	Create(ctx context.Context, n *Negotiation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Negotiation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Negotiation, error)
	Update(ctx context.Context, n *Negotiation) error
	UpdateParticipant(ctx context.Context, negotiationID uuid.UUID, p Participant) error
	AppendSlots(ctx context.Context, negotiationID uuid.UUID, slots []Slot) error
	AppendVenues(ctx context.Context, negotiationID uuid.UUID, venues []Venue) error
	List(ctx context.Context, filter Filter) ([]*Negotiation, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	RecordTransition(ctx context.Context, t *Transition) error
	ListTransitions(ctx context.Context, negotiationID uuid.UUID) ([]*Transition, error)
}

// IdempotencyRecord remembers a write performed under a client key.
type IdempotencyRecord struct {
	UserID        string
	Key           string
	Fingerprint   string
	NegotiationID uuid.UUID
	CreatedAt     time.Time
}

// IdempotencyRepository stores client idempotency keys.
type IdempotencyRepository interface {
	Get(ctx context.Context, userID, key string) (*IdempotencyRecord, error)
	Put(ctx context.Context, rec *IdempotencyRecord) error
}
