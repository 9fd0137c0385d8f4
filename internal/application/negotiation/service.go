package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/accord-hub/accord/internal/apperrors"
	appEvent "github.com/accord-hub/accord/internal/application/event"
	"github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Config bounds the engine's inputs.
type Config struct {
	MaxCounterOptions int
	MaxCreateOptions  int
	MaxParticipants   int
	MaxTxRetries      int
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxCounterOptions <= 0 {
		c.MaxCounterOptions = 5
	}
	if c.MaxCreateOptions <= 0 {
		c.MaxCreateOptions = 10
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = 50
	}
	if c.MaxTxRetries < 0 {
		c.MaxTxRetries = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Service runs the negotiation lifecycle.
type Service struct {
	store        negotiation.Store
	materializer *appEvent.Materializer
	cfg          Config
	logger       zerolog.Logger
}

// NewService creates a negotiation service.
func NewService(
	store negotiation.Store,
	materializer *appEvent.Materializer,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:        store,
		materializer: materializer,
		cfg:          cfg.withDefaults(),
		logger:       logger.With().Str("service", "negotiation").Logger(),
	}
}

// now is truncated to the precision both stores keep.
func (s *Service) now() time.Time {
	return s.cfg.Now().UTC().Truncate(time.Microsecond)
}

// CreateInput describes a new negotiation. ID is client generated so the
// request can be retried; a zero ID gets a fresh one.
type CreateInput struct {
	ID             uuid.UUID
	Owner          string
	Title          string
	IntentCategory string
	ParticipantIDs []string
	Slots          []negotiation.SlotInput
	Venues         []negotiation.VenueInput
	ExpiresAt      *time.Time
	AgentMode      bool
	Draft          bool
}

// Create stores a negotiation with its organizer, invitees and initial
// options in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*negotiation.Negotiation, error) {
	now := s.now()
	invitees, err := s.validateCreate(in, now)
	if err != nil {
		return nil, err
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	state := negotiation.StateAwaitingInvites
	if in.Draft {
		state = negotiation.StateDraft
	}
	n := &negotiation.Negotiation{
		ID:             id,
		Owner:          in.Owner,
		Title:          strings.TrimSpace(in.Title),
		IntentCategory: strings.TrimSpace(in.IntentCategory),
		State:          state,
		AgentMode:      in.AgentMode,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		n.ExpiresAt = &exp
	}
	n.Participants = append(n.Participants, negotiation.Participant{UserID: in.Owner, Status: negotiation.ParticipantOrganizer})
	for _, uid := range invitees {
		n.Participants = append(n.Participants, negotiation.Participant{UserID: uid, Status: negotiation.ParticipantInvited})
	}
	n.Slots = n.BuildSlots(in.Slots, in.Owner, 0, now)
	n.Venues = n.BuildVenues(in.Venues, in.Owner, 0, now)

	var stored *negotiation.Negotiation
	err = s.store.WithTx(ctx, func(stores negotiation.StoreProvider) error {
		repo := stores.Negotiations()
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = existing
			return nil
		}
		if err := repo.Create(ctx, n); err != nil {
			return err
		}
		stored = n
		return repo.RecordTransition(ctx, negotiation.NewTransition(n.ID, nil, n.State, in.Owner, "create", 0, now))
	})
	if errors.Is(err, negotiation.ErrAlreadyExists) {
		stored, err = s.store.Negotiations().GetByID(ctx, id)
	}
	if err != nil {
		return nil, s.internal(err, id, "create")
	}
	if stored == nil {
		return nil, apperrors.Internal(fmt.Errorf("negotiation %s vanished after create", id))
	}
	if stored.Owner != in.Owner {
		return nil, apperrors.Validation("id", "id is already in use")
	}
	if stored == n {
		s.logger.Info().
			Str("negotiation_id", n.ID.String()).
			Str("user_id", in.Owner).
			Str("state", string(n.State)).
			Int("participants", len(n.Participants)).
			Msg("negotiation created")
	}
	return stored, nil
}

func (s *Service) validateCreate(in CreateInput, now time.Time) ([]string, error) {
	if strings.TrimSpace(in.Owner) == "" {
		return nil, apperrors.Validation("owner", "owner is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.Validation("title", "title is required")
	}
	seen := map[string]bool{in.Owner: true}
	invitees := make([]string, 0, len(in.ParticipantIDs))
	for _, raw := range in.ParticipantIDs {
		uid := strings.TrimSpace(raw)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		invitees = append(invitees, uid)
	}
	if len(invitees) == 0 {
		return nil, apperrors.Validation("participantIds", "at least one participant besides the owner is required")
	}
	if len(invitees)+1 > s.cfg.MaxParticipants {
		return nil, apperrors.Validation("participantIds", fmt.Sprintf("at most %d participants are allowed", s.cfg.MaxParticipants))
	}
	if len(in.Slots) == 0 {
		return nil, apperrors.Validation("slots", "at least one slot is required")
	}
	if len(in.Slots) > s.cfg.MaxCreateOptions {
		return nil, apperrors.Validation("slots", fmt.Sprintf("at most %d slots are allowed", s.cfg.MaxCreateOptions))
	}
	if err := validateSlots("slots", in.Slots); err != nil {
		return nil, err
	}
	if len(in.Venues) > s.cfg.MaxCreateOptions {
		return nil, apperrors.Validation("venues", fmt.Sprintf("at most %d venues are allowed", s.cfg.MaxCreateOptions))
	}
	if err := validateVenues("venues", in.Venues); err != nil {
		return nil, err
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, apperrors.Validation("expiresAt", "expiresAt must be in the future")
	}
	return invitees, nil
}

func validateSlots(field string, slots []negotiation.SlotInput) error {
	for i, sl := range slots {
		if sl.StartsAt.IsZero() || sl.EndsAt.IsZero() {
			return apperrors.Validation(fmt.Sprintf("%s[%d]", field, i), "startsAt and endsAt are required")
		}
		if !sl.EndsAt.After(sl.StartsAt) {
			return apperrors.Validation(fmt.Sprintf("%s[%d]", field, i), "endsAt must be after startsAt")
		}
	}
	return nil
}

func validateVenues(field string, venues []negotiation.VenueInput) error {
	for i, v := range venues {
		if strings.TrimSpace(v.Name) == "" {
			return apperrors.Validation(fmt.Sprintf("%s[%d].name", field, i), "name is required")
		}
	}
	return nil
}

// Get returns a negotiation visible to callerID.
func (s *Service) Get(ctx context.Context, id uuid.UUID, callerID string) (*negotiation.Negotiation, error) {
	n, err := s.store.Negotiations().GetByID(ctx, id)
	if err != nil {
		return nil, s.internal(err, id, string(OpGet))
	}
	if _, err := Check(n, id, callerID, OpGet); err != nil {
		return nil, err
	}
	return n, nil
}

// ListInput filters a caller's negotiations.
type ListInput struct {
	UserID string
	State  *negotiation.State
	Role   *negotiation.Role
	Cursor string
	Limit  int
}

// Page is one page of a listing. NextCursor is empty on the last page.
type Page struct {
	Items      []*negotiation.Negotiation
	NextCursor string
}

// List returns negotiations where the caller is organizer or participant,
// newest update first.
func (s *Service) List(ctx context.Context, in ListInput) (*Page, error) {
	if in.UserID == "" {
		return nil, apperrors.Validation("user", "caller identity is required")
	}
	if in.State != nil && !in.State.Valid() {
		return nil, apperrors.Validation("state", "unknown state")
	}
	if in.Role != nil && *in.Role != negotiation.RoleOwner && *in.Role != negotiation.RoleParticipant {
		return nil, apperrors.Validation("role", "role must be owner or participant")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter := negotiation.Filter{
		UserID: in.UserID,
		State:  in.State,
		Role:   in.Role,
		Limit:  limit + 1,
	}
	if in.Cursor != "" {
		c, err := negotiation.DecodeCursor(in.Cursor)
		if err != nil {
			return nil, apperrors.Validation("cursor", "cursor is invalid")
		}
		filter.After = c
	}

	items, err := s.store.Negotiations().List(ctx, filter)
	if err != nil {
		return nil, s.internal(err, uuid.Nil, "list")
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = negotiation.CursorFor(page.Items[limit-1]).Encode()
	}
	return page, nil
}

// ListTransitions returns the state history of a negotiation.
func (s *Service) ListTransitions(ctx context.Context, id uuid.UUID, callerID string) ([]*negotiation.Transition, error) {
	repo := s.store.Negotiations()
	n, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.internal(err, id, string(OpListTransitions))
	}
	if _, err := Check(n, id, callerID, OpListTransitions); err != nil {
		return nil, err
	}
	out, err := repo.ListTransitions(ctx, id)
	if err != nil {
		return nil, s.internal(err, id, string(OpListTransitions))
	}
	return out, nil
}

// GetEvent returns the event an accepted negotiation produced.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID, callerID string) (*event.Event, error) {
	n, err := s.store.Negotiations().GetByID(ctx, id)
	if err != nil {
		return nil, s.internal(err, id, string(OpGetEvent))
	}
	if _, err := Check(n, id, callerID, OpGetEvent); err != nil {
		return nil, err
	}
	e, err := s.store.Events().GetByNegotiationID(ctx, id)
	if err != nil {
		return nil, s.internal(err, id, string(OpGetEvent))
	}
	if e == nil {
		return nil, &apperrors.Error{Kind: apperrors.KindNotFound, NegotiationID: id.String(), Message: "event not found"}
	}
	return e, nil
}

// mutate runs fn in a transaction and retries it against fresh state when a
// concurrent writer committed first.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, action string, fn func(stores negotiation.StoreProvider) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, negotiation.ErrConcurrentUpdate) {
			return s.internal(err, id, action)
		}
		if attempt >= s.cfg.MaxTxRetries || ctx.Err() != nil {
			s.logger.Warn().
				Str("negotiation_id", id.String()).
				Str("action", action).
				Int("attempts", attempt+1).
				Msg("giving up after concurrent updates")
			return &apperrors.Error{
				Kind:            apperrors.KindStateConflict,
				NegotiationID:   id.String(),
				RequestedAction: action,
				Message:         "negotiation was modified concurrently",
			}
		}
		s.logger.Debug().
			Str("negotiation_id", id.String()).
			Str("action", action).
			Int("attempt", attempt+1).
			Msg("concurrent update, retrying")
	}
}

// internal passes apperrors through and wraps everything else as internal.
func (s *Service) internal(err error, id uuid.UUID, action string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error().Err(err).
		Str("negotiation_id", id.String()).
		Str("action", action).
		Msg("store operation failed")
	return apperrors.Internal(err)
}

// load reads the negotiation for update and applies the guard.
func load(ctx context.Context, repo negotiation.Repository, id uuid.UUID, callerID string, op Operation) (*negotiation.Negotiation, negotiation.Access, error) {
	n, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, negotiation.AccessDenied, err
	}
	access, err := Check(n, id, callerID, op)
	if err != nil {
		return nil, access, err
	}
	return n, access, nil
}

func conflict(n *negotiation.Negotiation, action string) error {
	return apperrors.StateConflict(n.ID.String(), string(n.State), action)
}
