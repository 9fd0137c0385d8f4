package negotiation

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

	"github.com/accord-hub/accord/internal/apperrors"
	appEvent "github.com/accord-hub/accord/internal/application/event"
	"github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
	"github.com/accord-hub/accord/internal/domain/negotiation/mocks"
)

func TestSweeper_ExpiresOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.createInput("p1")
	exp := f.clock.Now().Add(time.Hour)
	in.ExpiresAt = &exp
	overdue, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.FinalizeInvites(ctx, overdue.ID, "o")
	require.NoError(t, err)

	later := f.createInput("p1")
	farExp := f.clock.Now().Add(72 * time.Hour)
	later.ExpiresAt = &farExp
	pending, err := f.svc.Create(ctx, later)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	sweeper := NewSweeper(f.store, SweeperConfig{BatchSize: 1, Now: f.clock.Now}, zerolog.Nop())

	count, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err := f.svc.Get(ctx, overdue.ID, "o")
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateExpired, n.State)

	untouched, err := f.svc.Get(ctx, pending.ID, "o")
	require.NoError(t, err)
	assert.Equal(t, negotiation.StateAwaitingInvites, untouched.State)

	count, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	again, err := f.svc.Get(ctx, overdue.ID, "o")
	require.NoError(t, err)
	assert.Equal(t, n.Version, again.Version)

	transitions, err := f.svc.ListTransitions(ctx, overdue.ID, "o")
	require.NoError(t, err)
	last := transitions[len(transitions)-1]
	assert.Equal(t, negotiation.StateExpired, last.ToState)
	assert.Equal(t, systemActor, last.Actor)

	_, err = f.svc.Cancel(ctx, overdue.ID, "o")
	requireKind(t, err, apperrors.KindStateConflict)
}

func TestSweeper_WorksThroughFullBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		in := f.createInput("p1")
		exp := f.clock.Now().Add(time.Hour)
		in.ExpiresAt = &exp
		_, err := f.svc.Create(ctx, in)
		require.NoError(t, err)
	}
	f.clock.Advance(2 * time.Hour)

	sweeper := NewSweeper(f.store, SweeperConfig{BatchSize: 2, Now: f.clock.Now}, zerolog.Nop())
	count, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// mockStore runs transactions directly against a mocked repository.
type mockStore struct {
	repo *mocks.MockRepository
}

func (s *mockStore) Negotiations() negotiation.Repository { return s.repo }
func (s *mockStore) Events() event.Repository { return nil }
func (s *mockStore) Idempotency() negotiation.IdempotencyRepository { return nil }
func (s *mockStore) Ping(context.Context) error { return nil }
func (s *mockStore) WithTx(_ context.Context, fn func(negotiation.StoreProvider) error) error {
	return fn(s)
}

func TestSweeper_IsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	store := &mockStore{repo: repo}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	ctx := context.Background()

	broken, healthy := uuid.New(), uuid.New()
	open := &negotiation.Negotiation{ID: healthy, State: negotiation.StateAwaitingReplies, ExpiresAt: &past, Version: 3}

	repo.EXPECT().ListExpirable(ctx, now, 10).Return([]uuid.UUID{broken, healthy}, nil)
	repo.EXPECT().GetForUpdate(ctx, broken).Return(nil, errors.New("database error"))
	repo.EXPECT().GetForUpdate(ctx, healthy).Return(open, nil)
	repo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, n *negotiation.Negotiation) error {
		assert.Equal(t, negotiation.StateExpired, n.State)
		return nil
	})
	repo.EXPECT().RecordTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *negotiation.Transition) error {
		require.NotNil(t, tr.FromState)
		assert.Equal(t, negotiation.StateAwaitingReplies, *tr.FromState)
		assert.Equal(t, systemActor, tr.Actor)
		return nil
	})

	sweeper := NewSweeper(store, SweeperConfig{BatchSize: 10, Now: func() time.Time { return now }}, zerolog.Nop())
	count, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSweeper_SkipsRowChangedSinceScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	store := &mockStore{repo: repo}
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	ctx := context.Background()

	id := uuid.New()
	accepted := &negotiation.Negotiation{ID: id, State: negotiation.StateAccepted, ExpiresAt: &past}

	repo.EXPECT().ListExpirable(ctx, now, 10).Return([]uuid.UUID{id}, nil)
	repo.EXPECT().GetForUpdate(ctx, id).Return(accepted, nil)

	sweeper := NewSweeper(store, SweeperConfig{BatchSize: 10, Now: func() time.Time { return now }}, zerolog.Nop())
	count, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweeper_ListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	ctx := context.Background()

	repo.EXPECT().ListExpirable(ctx, gomock.Any(), 100).Return(nil, errors.New("database error"))

	sweeper := NewSweeper(&mockStore{repo: repo}, SweeperConfig{}, zerolog.Nop())
	_, err := sweeper.Sweep(ctx)
	require.Error(t, err)
}

// conflictStore reports a lost race on every transaction.
type conflictStore struct {
	mockStore
	attempts int
}

func (s *conflictStore) WithTx(context.Context, func(negotiation.StoreProvider) error) error {
	s.attempts++
	return negotiation.ErrConcurrentUpdate
}

func TestService_RetriesThenConflicts(t *testing.T) {
	store := &conflictStore{}
	svc := NewService(store, appEvent.NewMaterializer(nil, zerolog.Nop()), Config{MaxTxRetries: 2}, zerolog.Nop())

	_, err := svc.Reply(context.Background(), ReplyInput{NegotiationID: uuid.New(), UserID: "p1", Action: negotiation.ActionAccept})
	appErr := requireKind(t, err, apperrors.KindStateConflict)
	assert.Equal(t, string(negotiation.ActionAccept), appErr.RequestedAction)
	assert.Equal(t, 3, store.attempts)
}

func TestService_StoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	svc := NewService(&mockStore{repo: repo}, appEvent.NewMaterializer(nil, zerolog.Nop()), Config{}, zerolog.Nop())
	ctx := context.Background()
	id := uuid.New()

	repo.EXPECT().GetByID(ctx, id).Return(nil, errors.New("connection refused"))

	_, err := svc.Get(ctx, id, "o")
	appErr := requireKind(t, err, apperrors.KindInternal)
	assert.NotContains(t, appErr.Message, "connection refused")
}
