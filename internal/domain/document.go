package domain

// Reserved document keys managed by the storage layer and the save context.
const (
	KeyID       = "_id"
	KeyRev      = "_rev"
	KeyDoctype  = "doctype"
	KeyCreated  = "created"
	KeyModified = "modified"
)

// Document types
const (
	DoctypeUser = "user"
	DoctypeLog  = "log"
)

// HiddenValue replaces the real content of redacted fields in log entries.
const HiddenValue = "<hidden>"

// Document is a nested key/value record persisted in the document store.
// Values are JSON-shaped: scalars, []any and nested map[string]any.
type Document map[string]any

func (d Document) ID() string {
	return d.String(KeyID)
}

func (d Document) Rev() string {
	return d.String(KeyRev)
}

func (d Document) SetRev(rev string) {
	d[KeyRev] = rev
}

func (d Document) Doctype() string {
	return d.String(KeyDoctype)
}

// String returns the value under key if it is a string, otherwise "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// IsNew reports whether the document has never been written to the store.
func (d Document) IsNew() bool {
	return d.Rev() == ""
}

// DeepCopy returns a copy of the document sharing no mutable state with it.
func (d Document) DeepCopy() Document {
	if d == nil {
		return nil
	}
	return Document(copyMap(d))
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case Document:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
