package negotiation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/apperrors"
	"github.com/accord-hub/accord/internal/domain/event"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

// ReplyInput is one participant action. Counter options are only read for
// ActionCounter.
type ReplyInput struct {
	NegotiationID  uuid.UUID
	UserID         string
	Action         negotiation.Action
	CounterSlots   []negotiation.SlotInput
	CounterVenues  []negotiation.VenueInput
	IdempotencyKey string
}

type replyFingerprint struct {
	NegotiationID uuid.UUID                `json:"negotiationId"`
	Action        negotiation.Action       `json:"action"`
	Slots         []negotiation.SlotInput  `json:"slots,omitempty"`
	Venues        []negotiation.VenueInput `json:"venues,omitempty"`
}

// Reply applies a participant's accept, decline or counter and recomputes
// consensus, all in one transaction. Entering accepted materializes the event.
func (s *Service) Reply(ctx context.Context, in ReplyInput) (*negotiation.Negotiation, error) {
	var fp string
	if in.IdempotencyKey != "" {
		if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
			return nil, apperrors.Validation("Idempotency-Key", "key is too long")
		}
		var err error
		fp, err = fingerprint(replyFingerprint{
			NegotiationID: in.NegotiationID,
			Action:        in.Action,
			Slots:         in.CounterSlots,
			Venues:        in.CounterVenues,
		})
		if err != nil {
			return nil, apperrors.Internal(err)
		}
	}
	requested := string(in.Action)
	if !in.Action.Valid() {
		requested = string(OpReply)
	}

	var (
		result  *negotiation.Negotiation
		created *event.Event
		changed bool
	)
	err := s.mutate(ctx, in.NegotiationID, requested, func(stores negotiation.StoreProvider) error {
		result, created, changed = nil, nil, false
		repo := stores.Negotiations()

		n, access, err := load(ctx, repo, in.NegotiationID, in.UserID, OpReply)
		if err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			rec, err := stores.Idempotency().Get(ctx, in.UserID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if rec != nil {
				if rec.NegotiationID != n.ID || rec.Fingerprint != fp {
					return apperrors.Validation("Idempotency-Key", "key was already used for a different request")
				}
				result = n
				return nil
			}
		}
		if alreadyApplied(n, access, in) {
			result = n
			return nil
		}

		now := s.now()
		if n.State != negotiation.StateAwaitingReplies || n.IsExpired(now) {
			return conflict(n, requested)
		}
		if err := s.validateReply(access, in); err != nil {
			return err
		}

		from := n.State
		if access != negotiation.AccessOwner {
			p := n.Participant(in.UserID)
			p.Status = in.Action.ResultingStatus()
			p.RespondedAt = &now
			if err := repo.UpdateParticipant(ctx, n.ID, *p); err != nil {
				return err
			}
		}
		if in.Action == negotiation.ActionCounter {
			round := n.Round + 1
			slots := n.BuildSlots(in.CounterSlots, in.UserID, round, now)
			venues := n.BuildVenues(in.CounterVenues, in.UserID, round, now)
			if err := repo.AppendSlots(ctx, n.ID, slots); err != nil {
				return err
			}
			if err := repo.AppendVenues(ctx, n.ID, venues); err != nil {
				return err
			}
			n.Slots = append(n.Slots, slots...)
			n.Venues = append(n.Venues, venues...)
			n.Round = round
		}

		target := negotiation.Evaluate(n.Participants).NextState()
		if err := n.TransitionTo(target, negotiation.TriggerReply); err != nil {
			return conflict(n, requested)
		}
		n.UpdatedAt = now
		if err := repo.Update(ctx, n); err != nil {
			return err
		}
		if err := repo.RecordTransition(ctx, negotiation.NewTransition(n.ID, &from, n.State, in.UserID, string(in.Action), n.Round, now)); err != nil {
			return err
		}
		if n.State == negotiation.StateAccepted {
			e, isNew, err := s.materializer.Materialize(ctx, stores.Events(), n, now)
			if err != nil {
				return fmt.Errorf("materialize event: %w", err)
			}
			if isNew {
				created = e
			}
		}
		if in.IdempotencyKey != "" {
			if err := stores.Idempotency().Put(ctx, &negotiation.IdempotencyRecord{
				UserID:        in.UserID,
				Key:           in.IdempotencyKey,
				Fingerprint:   fp,
				NegotiationID: n.ID,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
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
			Str("negotiation_id", result.ID.String()).
			Str("user_id", in.UserID).
			Str("action", string(in.Action)).
			Str("state", string(result.State)).
			Int("round", result.Round).
			Msg("reply applied")
	}
	if created != nil {
		s.materializer.Publish(ctx, created)
	}
	return result, nil
}

// alreadyApplied reports whether an accept or decline is a retry of a reply
// that already took effect. The stored state must still be the one the
// current participant set produces; otherwise something else moved it.
func alreadyApplied(n *negotiation.Negotiation, access negotiation.Access, in ReplyInput) bool {
	if access == negotiation.AccessOwner {
		return false
	}
	if in.Action != negotiation.ActionAccept && in.Action != negotiation.ActionDecline {
		return false
	}
	p := n.Participant(in.UserID)
	if p == nil || p.Status != in.Action.ResultingStatus() {
		return false
	}
	return negotiation.Evaluate(n.Participants).NextState() == n.State
}

func (s *Service) validateReply(access negotiation.Access, in ReplyInput) error {
	if !in.Action.Valid() {
		return apperrors.Validation("action", "action must be accept, decline or counter")
	}
	if in.Action != negotiation.ActionCounter {
		if access == negotiation.AccessOwner {
			return apperrors.Validation("action", "the organizer can only counter")
		}
		if len(in.CounterSlots) > 0 || len(in.CounterVenues) > 0 {
			return apperrors.Validation("action", "counter options require action counter")
		}
		return nil
	}
	if len(in.CounterSlots) == 0 {
		return apperrors.Validation("counterSlots", "a counter needs at least one slot")
	}
	if len(in.CounterVenues) == 0 {
		return apperrors.Validation("counterVenues", "a counter needs at least one venue")
	}
	if len(in.CounterSlots) > s.cfg.MaxCounterOptions {
		return apperrors.Validation("counterSlots", fmt.Sprintf("at most %d slots per counter", s.cfg.MaxCounterOptions))
	}
	if len(in.CounterVenues) > s.cfg.MaxCounterOptions {
		return apperrors.Validation("counterVenues", fmt.Sprintf("at most %d venues per counter", s.cfg.MaxCounterOptions))
	}
	if err := validateSlots("counterSlots", in.CounterSlots); err != nil {
		return err
	}
	return validateVenues("counterVenues", in.CounterVenues)
}
