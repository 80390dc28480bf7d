package domain

// Change holds the before/after values of a single updated field.
type Change struct {
	OldValue any `json:"old_value"`
	NewValue any `json:"new_value"`
}

// DiffRecord is the structural difference between two document states.
// Values under Updated are either a Change or, for nested mappings that
// differ internally, a nested DiffRecord.
type DiffRecord struct {
	Added   map[string]any `json:"added,omitempty"`
	Removed map[string]any `json:"removed,omitempty"`
	Updated map[string]any `json:"updated,omitempty"`
}

// Empty reports whether the diff contains no changes at all.
func (r DiffRecord) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Updated) == 0
}
