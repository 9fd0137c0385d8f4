// Package redisstream publishes materialized events to a Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/accord-hub/accord/internal/domain/event"
)

const DefaultStream = "accord:events"

// Publisher appends one stream entry per event.
type Publisher struct {
	client *redis.Client
	stream string
	logger zerolog.Logger
}

func NewPublisher(client *redis.Client, stream string, logger zerolog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger.With().Str("publisher", "redis").Str("stream", stream).Logger(),
	}
}

// Connect parses url and returns a client that answered PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (p *Publisher) Publish(ctx context.Context, e *event.Event) error {
	fields, err := entryFields(e)
	if err != nil {
		return err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Result()
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.logger.Debug().Str("event_id", e.ID.String()).Str("entry_id", id).Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func entryFields(e *event.Event) (map[string]any, error) {
	attendees, err := json.Marshal(e.Attendees)
	if err != nil {
		return nil, fmt.Errorf("encode attendees: %w", err)
	}
	fields := map[string]any{
		"event_id":  e.ID.String(),
		"title":     e.Title,
		"starts_at": e.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":   e.EndsAt.UTC().Format(time.RFC3339),
		"organizer": e.Organizer,
		"attendees": string(attendees),
	}
	if e.NegotiationID != nil {
		fields["negotiation_id"] = e.NegotiationID.String()
	}
	if e.VenueName != "" {
		fields["venue_name"] = e.VenueName
	}
	return fields, nil
}
