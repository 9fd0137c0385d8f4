package negotiation

// State is the negotiation lifecycle state.
type State string

const (
	StateDraft           State = "draft"
	StateAwaitingInvites State = "awaiting_invites"
	StateAwaitingReplies State = "awaiting_replies"
	StateAccepted        State = "accepted"
	StateCancelled       State = "cancelled"
	StateExpired         State = "expired"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{
	StateDraft,
	StateAwaitingInvites,
	StateAwaitingReplies,
	StateAccepted,
	StateCancelled,
	StateExpired,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, v := range AllStates {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is accepted, cancelled or expired.
func (s State) IsTerminal() bool {
	return s == StateAccepted || s == StateCancelled || s == StateExpired
}

// Trigger names why a transition is requested. Expiration is restricted to
// the sweeper, so the edge table is keyed on it.
type Trigger string

const (
	TriggerSendInvites Trigger = "send_invites"
	TriggerFinalize    Trigger = "finalize"
	TriggerReply       Trigger = "reply"
	TriggerCancel      Trigger = "cancel"
	TriggerExpire      Trigger = "expire"
)

type edge struct {
	from State
	to   State
}

// transitions is the authoritative edge table.
var transitions = map[edge][]Trigger{
	{StateDraft, StateAwaitingInvites}:           {TriggerSendInvites},
	{StateDraft, StateCancelled}:                 {TriggerCancel},
	{StateAwaitingInvites, StateAwaitingReplies}: {TriggerFinalize},
	{StateAwaitingReplies, StateAwaitingReplies}: {TriggerReply},
	{StateAwaitingReplies, StateAccepted}:        {TriggerReply},
	{StateAwaitingReplies, StateCancelled}:       {TriggerCancel, TriggerReply},
	{StateAccepted, StateCancelled}:              {TriggerCancel},
	{StateDraft, StateExpired}:                   {TriggerExpire},
	{StateAwaitingInvites, StateExpired}:         {TriggerExpire},
	{StateAwaitingReplies, StateExpired}:         {TriggerExpire},
}

// CanTransition reports whether from -> to is a legal edge for trigger.
func CanTransition(from, to State, trigger Trigger) bool {
	for _, t := range transitions[edge{from, to}] {
		if t == trigger {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the negotiation may move to target for trigger.
func (n *Negotiation) CanTransitionTo(target State, trigger Trigger) bool {
	return CanTransition(n.State, target, trigger)
}

// TransitionTo moves the negotiation to target or returns a *TransitionError.
func (n *Negotiation) TransitionTo(target State, trigger Trigger) error {
	if !n.CanTransitionTo(target, trigger) {
		return &TransitionError{From: n.State, To: target, Trigger: trigger}
	}
	n.State = target
	return nil
}

// TransitionError describes an illegal transition request.
type TransitionError struct {
	From    State
	To      State
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return "invalid negotiation transition " + string(e.From) + " -> " + string(e.To) + " (" + string(e.Trigger) + ")"
}
