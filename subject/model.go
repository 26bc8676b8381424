// Package subject resolves a request context into the ordered list of
// subject identifiers used by permission and rate-limit lookup
//
// Ordering is the load-bearing invariant: subjects run from most
// specific to least specific and terminate in the wildcard "all".
// Ancestor search iterates subjects outer-to-inner in this order, so
// precedence is entirely a function of list position.
package subject

// Model one resolved subject
type Model struct {
	// Content the opaque subject identifier, e.g. "qq:23456" or "all"
	Content string

	// OfferBy which extractor produced this subject
	OfferBy string

	// Tag machine-readable position marker, e.g. "platform:group:user".
	// Extractors use tags to splice new subjects relative to existing ones.
	Tag string
}

// Contents returns the subject identifiers of the given models in order
func Contents(models []Model) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Content
	}
	return out
}
