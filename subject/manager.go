package subject

// Manager accumulates subjects while the extractor chain runs.
// It preserves insertion order; extractors may append, replace the
// whole list, or splice relative to an existing tag.
type Manager struct {
	subjects []Model
}

// NewManager creates an empty subject manager
func NewManager() *Manager {
	return &Manager{}
}

// Subjects returns the accumulated subjects in order
func (m *Manager) Subjects() []Model {
	return m.subjects
}

// Append adds subjects at the end of the list
func (m *Manager) Append(models ...Model) {
	m.subjects = append(m.subjects, models...)
}

// Replace discards the current list and installs the given one
func (m *Manager) Replace(models ...Model) {
	m.subjects = append(m.subjects[:0:0], models...)
}

// InsertBefore splices subjects immediately before the first subject
// carrying the given tag. Appends at the end when the tag is absent.
func (m *Manager) InsertBefore(tag string, models ...Model) {
	idx := -1
	for i, s := range m.subjects {
		if s.Tag == tag {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.Append(models...)
		return
	}

	out := make([]Model, 0, len(m.subjects)+len(models))
	out = append(out, m.subjects[:idx]...)
	out = append(out, models...)
	out = append(out, m.subjects[idx:]...)
	m.subjects = out
}

// Remove deletes every subject with the given content
func (m *Manager) Remove(content string) {
	filtered := m.subjects[:0]
	for _, s := range m.subjects {
		if s.Content != content {
			filtered = append(filtered, s)
		}
	}
	m.subjects = filtered
}
