package negotiation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accord-hub/accord/internal/apperrors"
	"github.com/accord-hub/accord/internal/domain/negotiation"
)

func TestCheck(t *testing.T) {
	n := &negotiation.Negotiation{
		ID:    uuid.New(),
		Owner: "o",
		Participants: []negotiation.Participant{
			{UserID: "o", Status: negotiation.ParticipantOrganizer},
			{UserID: "p1", Status: negotiation.ParticipantInvited},
		},
	}

	tests := []struct {
		name   string
		caller string
		op     Operation
		access negotiation.Access
		kind   apperrors.Kind
	}{
		{name: "owner reads", caller: "o", op: OpGet, access: negotiation.AccessOwner},
		{name: "participant reads", caller: "p1", op: OpListTransitions, access: negotiation.AccessParticipant},
		{name: "stranger reads", caller: "x", op: OpGet, kind: apperrors.KindNotFound},
		{name: "stranger reads event", caller: "x", op: OpGetEvent, kind: apperrors.KindNotFound},
		{name: "participant replies", caller: "p1", op: OpReply, access: negotiation.AccessParticipant},
		{name: "organizer replies", caller: "o", op: OpReply, access: negotiation.AccessOwner},
		{name: "stranger replies", caller: "x", op: OpReply, kind: apperrors.KindForbidden},
		{name: "owner cancels", caller: "o", op: OpCancel, access: negotiation.AccessOwner},
		{name: "participant cancels", caller: "p1", op: OpCancel, kind: apperrors.KindForbidden},
		{name: "participant sends invites", caller: "p1", op: OpSendInvites, kind: apperrors.KindForbidden},
		{name: "stranger finalizes", caller: "x", op: OpFinalize, kind: apperrors.KindForbidden},
		{name: "anonymous", caller: "", op: OpGet, kind: apperrors.KindNotFound},
		{name: "unknown operation", caller: "o", op: Operation("purge"), kind: apperrors.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access, err := Check(n, n.ID, tt.caller, tt.op)
			if tt.kind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.access, access)
				return
			}
			appErr := requireKind(t, err, tt.kind)
			assert.Equal(t, negotiation.AccessDenied, access)
			assert.Equal(t, n.ID.String(), appErr.NegotiationID)
		})
	}
}

func TestCheckMissingNegotiation(t *testing.T) {
	id := uuid.New()
	for op := range policies {
		_, err := Check(nil, id, "o", op)
		requireKind(t, err, apperrors.KindNotFound)
	}
}

func TestPoliciesCoverEveryOperation(t *testing.T) {
	for _, op := range []Operation{OpGet, OpListTransitions, OpGetEvent, OpReply, OpSendInvites, OpFinalize, OpCancel} {
		_, ok := policies[op]
		assert.True(t, ok, "no policy for %s", op)
	}
}
