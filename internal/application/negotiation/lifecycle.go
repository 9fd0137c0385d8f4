package negotiation

import (
	"context"

	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/domain/negotiation"
)

// SendInvites moves a draft to awaiting_invites.
func (s *Service) SendInvites(ctx context.Context, id uuid.UUID, callerID string) (*negotiation.Negotiation, error) {
	return s.ownerTransition(ctx, id, callerID, OpSendInvites, negotiation.StateAwaitingInvites, negotiation.TriggerSendInvites)
}

// FinalizeInvites opens the negotiation for replies.
func (s *Service) FinalizeInvites(ctx context.Context, id uuid.UUID, callerID string) (*negotiation.Negotiation, error) {
	return s.ownerTransition(ctx, id, callerID, OpFinalize, negotiation.StateAwaitingReplies, negotiation.TriggerFinalize)
}

// Cancel cancels a draft, an open negotiation or an accepted one. An
// already materialized event is kept.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, callerID string) (*negotiation.Negotiation, error) {
	return s.ownerTransition(ctx, id, callerID, OpCancel, negotiation.StateCancelled, negotiation.TriggerCancel)
}

// ownerTransition applies an owner-driven edge. Repeating a request whose
// target state is already stored returns the snapshot unchanged.
func (s *Service) ownerTransition(
	ctx context.Context,
	id uuid.UUID,
	callerID string,
	op Operation,
	target negotiation.State,
	trigger negotiation.Trigger,
) (*negotiation.Negotiation, error) {
	var (
		result  *negotiation.Negotiation
		changed bool
	)
	err := s.mutate(ctx, id, string(op), func(stores negotiation.StoreProvider) error {
		result, changed = nil, false
		repo := stores.Negotiations()
		n, _, err := load(ctx, repo, id, callerID, op)
		if err != nil {
			return err
		}
		if n.State == target {
			result = n
			return nil
		}
		now := s.now()
		if !n.State.IsTerminal() && n.IsExpired(now) {
			return conflict(n, string(op))
		}
		from := n.State
		if err := n.TransitionTo(target, trigger); err != nil {
			return conflict(n, string(op))
		}
		n.UpdatedAt = now
		if err := repo.Update(ctx, n); err != nil {
			return err
		}
		if err := repo.RecordTransition(ctx, negotiation.NewTransition(n.ID, &from, n.State, callerID, string(op), n.Round, now)); err != nil {
			return err
		}
		result = n
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info().
			Str("negotiation_id", id.String()).
			Str("user_id", callerID).
			Str("action", string(op)).
			Str("state", string(result.State)).
			Msg("negotiation transitioned")
	}
	return result, nil
}
