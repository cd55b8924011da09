package fingerprint

// MergeDelta applies delta onto dst in place, per the merge semantics in
// spec.md §4.1: a nil value deletes the entry, a slice value replaces, a
// map value merges recursively, and any other scalar replaces. Returns dst
// for chaining; dst is created if nil.
func MergeDelta(dst map[string]any, delta map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		switch val := v.(type) {
		case nil:
			delete(dst, k)
		case map[string]any:
			existing, ok := dst[k].(map[string]any)
			if !ok || existing == nil {
				existing = make(map[string]any, len(val))
			}
			dst[k] = MergeDelta(existing, val)
		default:
			// slices and scalars both replace wholesale.
			dst[k] = v
		}
	}
	return dst
}

// Clone deep-copies a decoded JSON value so an accumulated Subscription
// state can be handed to a reader without risking a concurrent merge
// mutating it underneath.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = Clone(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = Clone(vv)
		}
		return out
	default:
		return val
	}
}
