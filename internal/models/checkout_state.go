package models

// CheckoutState is the state of a single checkout attempt.
type CheckoutState string

const (
	CheckoutStateStart        CheckoutState = "START"
	CheckoutStateSnapshotted  CheckoutState = "SNAPSHOTTED"
	CheckoutStateReserved     CheckoutState = "RESERVED"
	CheckoutStateAuthorized   CheckoutState = "AUTHORIZED"
	CheckoutStateCommitted    CheckoutState = "COMMITTED"
	CheckoutStateCompensating CheckoutState = "COMPENSATING"
	CheckoutStateFailed       CheckoutState = "FAILED"
)

// checkoutTransitions enumerates the legal forward edges. Every
// non-terminal state may additionally move to COMPENSATING or FAILED.
var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateStart:        {CheckoutStateSnapshotted},
	CheckoutStateSnapshotted:  {CheckoutStateReserved},
	CheckoutStateReserved:     {CheckoutStateAuthorized},
	CheckoutStateAuthorized:   {CheckoutStateCommitted},
	CheckoutStateCompensating: {CheckoutStateFailed},
}

// CanTransitionTo reports whether moving from one checkout state to
// another is legal.
func CanTransitionTo(from, to CheckoutState) bool {
	if to == CheckoutStateCompensating || to == CheckoutStateFailed {
		return !from.IsTerminal()
	}
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt is finished.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateCommitted || s == CheckoutStateFailed
}

func (s CheckoutState) String() string {
	return string(s)
}
