package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accord-hub/accord/internal/domain/event"
)

func TestEntryFields(t *testing.T) {
	nid := uuid.New()
	start := time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)
	e := &event.Event{
		ID:            uuid.New(),
		NegotiationID: &nid,
		Title:         "Dinner",
		StartsAt:      start,
		EndsAt:        start.Add(time.Hour),
		VenueName:     "Bistro",
		Organizer:     "o",
		Attendees:     []string{"p1", "p2"},
	}

	fields, err := entryFields(e)
	require.NoError(t, err)
	assert.Equal(t, e.ID.String(), fields["event_id"])
	assert.Equal(t, nid.String(), fields["negotiation_id"])
	assert.Equal(t, "2026-05-02T18:30:00Z", fields["starts_at"])
	assert.Equal(t, "2026-05-02T19:30:00Z", fields["ends_at"])
	assert.Equal(t, "Bistro", fields["venue_name"])
	assert.JSONEq(t, `["p1","p2"]`, fields["attendees"].(string))
}

func TestEntryFieldsOmitsEmptyOptionals(t *testing.T) {
	fields, err := entryFields(&event.Event{ID: uuid.New(), Title: "Call", Organizer: "o"})
	require.NoError(t, err)
	assert.NotContains(t, fields, "negotiation_id")
	assert.NotContains(t, fields, "venue_name")
	assert.Equal(t, "null", fields["attendees"])
}

func TestNewPublisherDefaultsStream(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	p := NewPublisher(client, "", zerolog.Nop())
	assert.Equal(t, DefaultStream, p.stream)
}

func TestPublishReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	p := NewPublisher(client, "test:events", zerolog.Nop())
	defer p.Close()

	err := p.Publish(context.Background(), &event.Event{ID: uuid.New(), Title: "Call", Organizer: "o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event")
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}
