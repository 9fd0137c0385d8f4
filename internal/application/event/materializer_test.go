package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainEvent "github.com/accord-hub/accord/internal/domain/event"
	eventMocks "github.com/accord-hub/accord/internal/domain/event/mocks"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

func acceptedNegotiation() *negotiation.Negotiation {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	return &negotiation.Negotiation{
		ID:    uuid.New(),
		Owner: "o",
		Title: "Dinner",
		State: negotiation.StateAccepted,
		Round: 1,
		Participants: []negotiation.Participant{
			{UserID: "o", Status: negotiation.ParticipantOrganizer},
			{UserID: "p1", Status: negotiation.ParticipantAccepted},
			{UserID: "p2", Status: negotiation.ParticipantAccepted},
		},
		Slots: []negotiation.Slot{
			{Index: 0, StartsAt: start, EndsAt: start.Add(time.Hour), Round: 0},
			{Index: 1, StartsAt: start.Add(24 * time.Hour), EndsAt: start.Add(25 * time.Hour), Round: 1},
		},
		Venues: []negotiation.Venue{
			{Index: 0, Name: "Bistro", Round: 0},
		},
	}
}

func TestBuild(t *testing.T) {
	n := acceptedNegotiation()
	now := time.Now().UTC()

	e, err := Build(n, now)

	require.NoError(t, err)
	require.NotNil(t, e.NegotiationID)
	assert.Equal(t, n.ID, *e.NegotiationID)
	assert.Equal(t, n.Slots[1].StartsAt, e.StartsAt, "latest round wins")
	assert.Equal(t, "Bistro", e.VenueName)
	assert.Equal(t, "o", e.Organizer)
	assert.ElementsMatch(t, []string{"p1", "p2"}, e.Attendees)
	assert.True(t, e.HasAttendee("p1"))
	assert.True(t, e.HasAttendee("o"))
	assert.False(t, e.HasAttendee("x"))
}

func TestBuildRejectsOpenNegotiation(t *testing.T) {
	n := acceptedNegotiation()
	n.State = negotiation.StateAwaitingReplies
	_, err := Build(n, time.Now())
	assert.ErrorIs(t, err, ErrNotAccepted)

	n = acceptedNegotiation()
	n.Slots = nil
	_, err = Build(n, time.Now())
	assert.ErrorIs(t, err, ErrNoSlot)
}

func TestMaterializer_Materialize(t *testing.T) {
	t.Run("creates once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := eventMocks.NewMockRepository(ctrl)
		m := NewMaterializer(nil, zerolog.Nop())
		ctx := context.Background()
		n := acceptedNegotiation()

		repo.EXPECT().GetByNegotiationID(ctx, n.ID).Return(nil, nil)
		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, e *domainEvent.Event) error {
			assert.Equal(t, n.ID, *e.NegotiationID)
			return nil
		})

		e, created, err := m.Materialize(ctx, repo, n, time.Now())
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "Dinner", e.Title)
	})

	t.Run("existing event is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := eventMocks.NewMockRepository(ctrl)
		m := NewMaterializer(nil, zerolog.Nop())
		ctx := context.Background()
		n := acceptedNegotiation()
		existing := &domainEvent.Event{ID: uuid.New()}

		repo.EXPECT().GetByNegotiationID(ctx, n.ID).Return(existing, nil)

		e, created, err := m.Materialize(ctx, repo, n, time.Now())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, e.ID)
	})

	t.Run("duplicate insert is treated as materialized", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := eventMocks.NewMockRepository(ctrl)
		m := NewMaterializer(nil, zerolog.Nop())
		ctx := context.Background()
		n := acceptedNegotiation()
		existing := &domainEvent.Event{ID: uuid.New()}

		gomock.InOrder(
			repo.EXPECT().GetByNegotiationID(ctx, n.ID).Return(nil, nil),
			repo.EXPECT().Create(ctx, gomock.Any()).Return(domainEvent.ErrAlreadyExists),
			repo.EXPECT().GetByNegotiationID(ctx, n.ID).Return(existing, nil),
		)

		e, created, err := m.Materialize(ctx, repo, n, time.Now())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, e.ID)
	})

	t.Run("repository error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := eventMocks.NewMockRepository(ctrl)
		m := NewMaterializer(nil, zerolog.Nop())
		ctx := context.Background()
		n := acceptedNegotiation()

		repo.EXPECT().GetByNegotiationID(ctx, n.ID).Return(nil, errors.New("database error"))

		_, _, err := m.Materialize(ctx, repo, n, time.Now())
		require.Error(t, err)
	})
}

func TestMaterializer_Publish(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := eventMocks.NewMockPublisher(ctrl)
	m := NewMaterializer(pub, zerolog.Nop())
	ctx := context.Background()
	e := &domainEvent.Event{ID: uuid.New()}

	pub.EXPECT().Publish(ctx, e).Return(errors.New("stream down"))
	m.Publish(ctx, e)

	pub.EXPECT().Publish(ctx, e).Return(nil)
	m.Publish(ctx, e)

	m.Publish(ctx, nil)
}
