// Package eventbus provides the typed in-memory pub/sub fabric for
// permission and rate-limit change notifications
//
// Design philosophy:
//   - Standalone package, depends only on the logger component
//   - Synchronous fan-out: Fire runs all matching listeners concurrently
//     and waits for completion; a listener error surfaces to the firer
//     after every listener has run
//   - Predicate-filtered subscription: listeners only see payloads their
//     predicate accepts
//   - No ordering guarantee between listeners of the same event
package eventbus

// Type event type identifier
type Type string

const (
	// TypeSetPermission an explicit permission row was written
	TypeSetPermission Type = "service_set_permission"

	// TypeRemovePermission an explicit permission row was deleted
	TypeRemovePermission Type = "service_remove_permission"

	// TypeChangePermission the effective permission of a node changed,
	// including inherited changes cascaded to descendants
	TypeChangePermission Type = "service_change_permission"

	// TypeAddRateLimitRule a rate-limit rule was created
	TypeAddRateLimitRule Type = "service_add_rate_limit_rule"

	// TypeRemoveRateLimitRule a rate-limit rule was deleted
	TypeRemoveRateLimitRule Type = "service_remove_rate_limit_rule"
)

// ServiceRef minimal view of a service-tree node carried by events.
// Declared here so the bus does not depend on the service package.
type ServiceRef interface {
	QualifiedName() string
}

// RuleRef minimal view of a rate-limit rule carried by events
type RuleRef interface {
	RuleID() string
}

// Payload event payload. Fields are populated per event type:
// permission events carry Service/Subject/Allow, rule events carry
// Service/Rule.
type Payload struct {
	Service ServiceRef
	Subject string
	Allow   bool
	Rule    RuleRef
}

// Predicate reports whether a listener wants the payload.
// A nil predicate matches everything.
type Predicate func(Payload) bool

// ForService returns a predicate matching events fired for the given node
func ForService(svc ServiceRef) Predicate {
	return func(p Payload) bool {
		return p.Service == svc
	}
}
