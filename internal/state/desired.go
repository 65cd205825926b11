package state

// DesiredState describes what a resource should look like.
type DesiredState struct {
	Description       string
	DisplayName       string
	Organization      string
	RemovalDisallowed bool
	Scope             string
	Content           []map[string]any
	Options           map[string]any
}

// Clone returns a deep copy so capabilities cannot mutate the caller's value.
func (d DesiredState) Clone() DesiredState {
	out := d
	if d.Content != nil {
		out.Content = make([]map[string]any, len(d.Content))
		for i, item := range d.Content {
			out.Content[i] = cloneMap(item)
		}
	}
	out.Options = cloneMap(d.Options)
	return out
}

// ValidationResult compares the installed resource with freshly generated content.
type ValidationResult struct {
	Installed bool
	// OldPayload is nil when nothing is installed.
	OldPayload []byte
	NewPayload []byte
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(typed))
		for i, item := range typed {
			out[i] = cloneMap(item)
		}
		return out
	case []byte:
		return append([]byte(nil), typed...)
	default:
		return v
	}
}
