// Package intercept gates handler execution on the permission and
// rate-limit engines. Host frameworks either bind handler ids and call
// Check, or wrap handler functions directly.
package intercept

// State tracks a request through the two-phase gate.
// Transitions: Unchecked -> DeniedPermission | DeniedRateLimit |
// Allowed; Allowed -> TokenRetired.
type State int

const (
	StateUnchecked State = iota
	StateDeniedPermission
	StateDeniedRateLimit
	StateAllowed
	StateTokenRetired
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateDeniedPermission:
		return "denied_permission"
	case StateDeniedRateLimit:
		return "denied_rate_limit"
	case StateAllowed:
		return "allowed"
	case StateTokenRetired:
		return "token_retired"
	default:
		return "unknown"
	}
}

// Passed reports whether the request may proceed to its handler
func (s State) Passed() bool {
	return s == StateAllowed || s == StateTokenRetired
}
