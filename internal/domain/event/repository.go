package event

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for events. Create must reject a second
// event for the same negotiation with ErrAlreadyExists.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, eventID uuid.UUID) (*Event, error)
	GetByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*Event, error)
}

// Publisher hands committed events to the external calendar/notification layer.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}
