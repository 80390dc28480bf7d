// Package diff computes structural differences between two document states.
package diff

import (
	"reflect"

	"account-service/internal/domain"
)

// Path is an exact key path from the document root.
type Path []string

func (p Path) equal(other []string) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// DefaultExcludePaths lists the fields maintained by the storage layer and
// the save context. They change on every save and carry no audit value.
func DefaultExcludePaths() []Path {
	return []Path{
		{domain.KeyID},
		{domain.KeyRev},
		{domain.KeyDoctype},
		{domain.KeyModified},
	}
}

// Engine compares documents while skipping excluded paths and redacting
// hidden ones. The zero value diffs everything verbatim.
type Engine struct {
	Exclude []Path
	Hidden  []Path
}

// New returns an engine with the default exclusions plus the given hidden
// value paths.
func New(hidden ...Path) *Engine {
	return &Engine{
		Exclude: DefaultExcludePaths(),
		Hidden:  hidden,
	}
}

// Diff returns the difference between the two document states. It is a pure
// function: neither document is modified and map iteration order does not
// affect the result. Pass an empty document as prev for a brand-new one.
func (e *Engine) Diff(prev, curr domain.Document) domain.DiffRecord {
	return e.walk(prev, curr, nil)
}

func (e *Engine) walk(prev, curr map[string]any, stack []string) domain.DiffRecord {
	added := make(map[string]any)
	removed := make(map[string]any)
	updated := make(map[string]any)

	for key, currVal := range curr {
		path := childPath(stack, key)
		if e.excluded(path) {
			continue
		}
		prevVal, exists := prev[key]
		if !exists {
			added[key] = e.render(path, currVal)
			continue
		}
		prevMap, prevOK := asMap(prevVal)
		currMap, currOK := asMap(currVal)
		if prevOK && currOK {
			changes := e.walk(prevMap, currMap, path)
			if changes.Empty() {
				continue
			}
			if e.hidden(path) {
				updated[key] = domain.HiddenValue
			} else {
				updated[key] = changes
			}
			continue
		}
		if reflect.DeepEqual(prevVal, currVal) {
			continue
		}
		if e.hidden(path) {
			updated[key] = domain.Change{OldValue: domain.HiddenValue, NewValue: domain.HiddenValue}
		} else {
			updated[key] = domain.Change{OldValue: prevVal, NewValue: currVal}
		}
	}

	for key, prevVal := range prev {
		if _, exists := curr[key]; exists {
			continue
		}
		path := childPath(stack, key)
		if e.excluded(path) {
			continue
		}
		removed[key] = e.render(path, prevVal)
	}

	var rec domain.DiffRecord
	if len(added) > 0 {
		rec.Added = added
	}
	if len(removed) > 0 {
		rec.Removed = removed
	}
	if len(updated) > 0 {
		rec.Updated = updated
	}
	return rec
}

func (e *Engine) render(path []string, value any) any {
	if e.hidden(path) {
		return domain.HiddenValue
	}
	return value
}

func (e *Engine) excluded(path []string) bool {
	for _, p := range e.Exclude {
		if p.equal(path) {
			return true
		}
	}
	return false
}

func (e *Engine) hidden(path []string) bool {
	for _, p := range e.Hidden {
		if p.equal(path) {
			return true
		}
	}
	return false
}

func childPath(stack []string, key string) []string {
	path := make([]string, len(stack)+1)
	copy(path, stack)
	path[len(stack)] = key
	return path
}

func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case domain.Document:
		return val, true
	default:
		return nil, false
	}
}
