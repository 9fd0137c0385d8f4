package negotiation

import (
	"github.com/google/uuid"

	"github.com/accord-hub/accord/internal/apperrors"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

// Operation names a call site for the access policy.
type Operation string

const (
	OpGet             Operation = "get"
	OpListTransitions Operation = "list_transitions"
	OpGetEvent        Operation = "get_event"
	OpReply           Operation = "reply"
	OpSendInvites     Operation = "send_invites"
	OpFinalize        Operation = "finalize"
	OpCancel          Operation = "cancel"
)

type accessPolicy struct {
	require negotiation.Requirement
	deny    apperrors.Kind
}

// policies is the single place that decides how each call site denies.
// Reads mask existence as not_found; writes answer forbidden.
var policies = map[Operation]accessPolicy{
	OpGet:             {require: negotiation.RequireParticipant, deny: apperrors.KindNotFound},
	OpListTransitions: {require: negotiation.RequireParticipant, deny: apperrors.KindNotFound},
	OpGetEvent:        {require: negotiation.RequireParticipant, deny: apperrors.KindNotFound},
	OpReply:           {require: negotiation.RequireParticipant, deny: apperrors.KindForbidden},
	OpSendInvites:     {require: negotiation.RequireOwner, deny: apperrors.KindForbidden},
	OpFinalize:        {require: negotiation.RequireOwner, deny: apperrors.KindForbidden},
	OpCancel:          {require: negotiation.RequireOwner, deny: apperrors.KindForbidden},
}

// Check resolves callerID's access to n for op. A nil n is not_found.
func Check(n *negotiation.Negotiation, id uuid.UUID, callerID string, op Operation) (negotiation.Access, error) {
	if n == nil {
		return negotiation.AccessDenied, apperrors.NotFound(id.String())
	}
	p, ok := policies[op]
	if !ok {
		return negotiation.AccessDenied, apperrors.Forbidden(id.String())
	}
	access := negotiation.Authorize(n, callerID, p.require)
	if access != negotiation.AccessDenied {
		return access, nil
	}
	if p.deny == apperrors.KindNotFound {
		return access, apperrors.NotFound(id.String())
	}
	return access, apperrors.Forbidden(id.String())
}
