package negotiation

import (
	"context"

	"github.com/accord-hub/accord/internal/domain/event"
)

// StoreProvider exposes repositories bound to one connection or transaction.
type StoreProvider interface {
	Negotiations() Repository
	Events() event.Repository
	Idempotency() IdempotencyRepository
}

// TxRunner runs fn inside a single transaction. The transaction commits only
// when fn returns nil; repositories handed to fn must not escape it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

// Store is the transactional persistence used by the engine. Its own
// repositories are for reads outside a transaction.
type Store interface {
	StoreProvider
	TxRunner
	Ping(ctx context.Context) error
}
