package event

import (
	"context"

	"github.com/rs/zerolog"

	domainEvent "github.com/accord-hub/accord/internal/domain/event"
)

// LogPublisher writes events to the log. Used when no stream is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("publisher", "log").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, e *domainEvent.Event) error {
	evt := p.logger.Info().
		Str("event_id", e.ID.String()).
		Str("title", e.Title).
		Time("starts_at", e.StartsAt).
		Time("ends_at", e.EndsAt).
		Int("attendees", len(e.Attendees))
	if e.NegotiationID != nil {
		evt = evt.Str("negotiation_id", e.NegotiationID.String())
	}
	evt.Msg("event materialized")
	return nil
}
