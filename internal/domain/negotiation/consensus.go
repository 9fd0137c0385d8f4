package negotiation

// Outcome is the aggregate result of evaluating participant statuses.
type Outcome string

const (
	OutcomeAccepted    Outcome = "converged_accept"
	OutcomeRejected    Outcome = "converged_reject"
	OutcomeNegotiating Outcome = "negotiating"
)

// NextState maps an outcome onto the lifecycle state it produces.
func (o Outcome) NextState() State {
	switch o {
	case OutcomeAccepted:
		return StateAccepted
	case OutcomeRejected:
		return StateCancelled
	default:
		return StateAwaitingReplies
	}
}

// Evaluate decides consensus over the non-organizer participants. It has no
// side effects. With no invitees at all the group is still negotiating.
func Evaluate(participants []Participant) Outcome {
	invitees, accepted, declined := 0, 0, 0
	for _, p := range participants {
		switch p.Status {
		case ParticipantOrganizer:
			continue
		case ParticipantAccepted:
			accepted++
		case ParticipantDeclined:
			declined++
		}
		invitees++
	}
	switch {
	case invitees == 0:
		return OutcomeNegotiating
	case accepted == invitees:
		return OutcomeAccepted
	case declined == invitees:
		return OutcomeRejected
	default:
		return OutcomeNegotiating
	}
}
