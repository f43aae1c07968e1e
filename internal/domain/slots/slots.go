// Package slots models card slot documents and the override merge used when
// attaching cards to strategies.
package slots

// Tree is a decoded JSON slot document. Keys present with a nil value are
// meaningful: an explicit null override clears the base value.
type Tree = map[string]any

// Merge returns base layered under override. Objects merge recursively; every
// other value kind, including arrays and explicit nulls, replaces wholesale.
// Neither input is mutated.
func Merge(base, override Tree) Tree {
	if base == nil && override == nil {
		return Tree{}
	}
	out := make(Tree, len(base)+len(override))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range override {
		baseChild, baseIsObject := out[k].(map[string]any)
		overrideChild, overrideIsObject := v.(map[string]any)
		if baseIsObject && overrideIsObject {
			out[k] = Merge(baseChild, overrideChild)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of the tree.
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return Clone(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}

// Object walks the path and returns the nested object at its end.
func Object(t Tree, path ...string) (map[string]any, bool) {
	current := t
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// Value walks the path and returns the raw value at its end.
func Value(t Tree, path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent, ok := Object(t, path[:len(path)-1]...)
	if !ok {
		return nil, false
	}
	v, present := parent[path[len(path)-1]]
	return v, present
}

// String returns the string value at the path, or "" when absent or not a
// string.
func String(t Tree, path ...string) string {
	v, ok := Value(t, path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
