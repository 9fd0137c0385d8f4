package negotiation

// Access is the caller's standing on a negotiation.
type Access string

const (
	AccessOwner       Access = "owner"
	AccessParticipant Access = "participant"
	AccessDenied      Access = "denied"
)

// Requirement is the minimum standing an operation needs.
type Requirement string

const (
	RequireOwner       Requirement = "owner"
	RequireParticipant Requirement = "participant"
)

// Authorize resolves callerID's access. The owner always satisfies
// RequireParticipant through the organizer record.
func Authorize(n *Negotiation, callerID string, req Requirement) Access {
	if n == nil || callerID == "" {
		return AccessDenied
	}
	if n.IsOwner(callerID) {
		return AccessOwner
	}
	if req == RequireOwner {
		return AccessDenied
	}
	if n.Participant(callerID) != nil {
		return AccessParticipant
	}
	return AccessDenied
}
