package negotiation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSlotsAppendsAfterExisting(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &Negotiation{Slots: []Slot{{Index: 0}, {Index: 4}, {Index: 2}}}

	slots := n.BuildSlots([]SlotInput{
		{StartsAt: now, EndsAt: now.Add(time.Hour)},
		{StartsAt: now.Add(2 * time.Hour), EndsAt: now.Add(3 * time.Hour)},
	}, "p1", 1, now)

	require.Len(t, slots, 2)
	assert.Equal(t, 5, slots[0].Index)
	assert.Equal(t, 6, slots[1].Index)
	assert.Equal(t, "p1", slots[0].ProposedBy)
	assert.Equal(t, 1, slots[1].Round)
}

func TestBuildVenuesOnEmpty(t *testing.T) {
	n := &Negotiation{}
	venues := n.BuildVenues([]VenueInput{{Name: "Cafe"}}, "o", 0, time.Now())
	require.Len(t, venues, 1)
	assert.Equal(t, 0, venues[0].Index)
	assert.Equal(t, 1, (&Negotiation{Venues: venues}).NextVenueIndex())
}

func TestLatestOptions(t *testing.T) {
	n := &Negotiation{
		Slots: []Slot{
			{Index: 0, Round: 0},
			{Index: 1, Round: 0},
			{Index: 3, Round: 1},
			{Index: 2, Round: 1},
		},
		Venues: []Venue{{Index: 0, Name: "first", Round: 0}},
	}
	slot, venue := n.LatestOptions()
	require.NotNil(t, slot)
	require.NotNil(t, venue)
	assert.Equal(t, 2, slot.Index)
	assert.Equal(t, "first", venue.Name)

	s, v := (&Negotiation{}).LatestOptions()
	assert.Nil(t, s)
	assert.Nil(t, v)
}

func TestIsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Negotiation{}).IsExpired(now))
	assert.True(t, (&Negotiation{ExpiresAt: &past}).IsExpired(now))
	assert.True(t, (&Negotiation{ExpiresAt: &now}).IsExpired(now))
	assert.False(t, (&Negotiation{ExpiresAt: &future}).IsExpired(now))
}

func TestAuthorize(t *testing.T) {
	n := &Negotiation{
		Owner: "o",
		Participants: []Participant{
			{UserID: "o", Status: ParticipantOrganizer},
			{UserID: "p1", Status: ParticipantInvited},
		},
	}
	tests := []struct {
		name     string
		caller   string
		req      Requirement
		expected Access
	}{
		{name: "owner as owner", caller: "o", req: RequireOwner, expected: AccessOwner},
		{name: "owner as participant", caller: "o", req: RequireParticipant, expected: AccessOwner},
		{name: "participant as participant", caller: "p1", req: RequireParticipant, expected: AccessParticipant},
		{name: "participant as owner", caller: "p1", req: RequireOwner, expected: AccessDenied},
		{name: "stranger", caller: "x", req: RequireParticipant, expected: AccessDenied},
		{name: "anonymous", caller: "", req: RequireParticipant, expected: AccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Authorize(n, tt.caller, tt.req))
		})
	}
	assert.Equal(t, AccessDenied, Authorize(nil, "o", RequireParticipant))
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, c.UpdatedAt.Equal(decoded.UpdatedAt))
	assert.Equal(t, c.ID, decoded.ID)

	for _, bad := range []string{"", "!!!", "bm90LWEtY3Vyc29y"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestActionResultingStatus(t *testing.T) {
	assert.Equal(t, ParticipantAccepted, ActionAccept.ResultingStatus())
	assert.Equal(t, ParticipantDeclined, ActionDecline.ResultingStatus())
	assert.Equal(t, ParticipantCountered, ActionCounter.ResultingStatus())
	assert.False(t, Action("maybe").Valid())
}
