package catalog

import (
	"strings"
)

// ResolvedSchema returns the slot schema for typeID with $ref nodes inlined
// so the document is self-contained for agent consumption. References into
// the shared pool ("common_defs.schema.json#/definitions/X") and internal
// references ("#/definitions/X") are both expanded. Cyclic or unknown
// references are left intact.
func (c *Catalog) ResolvedSchema(typeID string) (*Schema, error) {
	schema, err := c.Schema(typeID)
	if err != nil {
		return nil, err
	}
	defs, err := c.CommonDefs()
	if err != nil {
		return nil, err
	}
	r := &refResolver{
		root:     schema.JSONSchema,
		pool:     definitionsOf(defs),
		visiting: make(map[string]bool),
	}
	out := *schema
	resolved, _ := r.resolve(schema.JSONSchema).(map[string]any)
	if resolved != nil {
		out.JSONSchema = resolved
	}
	return &out, nil
}

type refResolver struct {
	root     map[string]any
	pool     map[string]any
	visiting map[string]bool
}

func (r *refResolver) resolve(node any) any {
	switch value := node.(type) {
	case map[string]any:
		if ref, ok := value["$ref"].(string); ok {
			if resolved, ok := r.expand(ref); ok {
				return resolved
			}
		}
		out := make(map[string]any, len(value))
		for k, v := range value {
			out[k] = r.resolve(v)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = r.resolve(item)
		}
		return out
	default:
		return node
	}
}

func (r *refResolver) expand(ref string) (any, bool) {
	file, pointer, found := strings.Cut(ref, "#")
	if !found {
		return nil, false
	}
	name, ok := strings.CutPrefix(pointer, "/definitions/")
	if !ok || strings.Contains(name, "/") {
		return nil, false
	}

	var source map[string]any
	switch file {
	case "":
		source = definitionsOf(r.root)
	case commonDefsFile:
		source = r.pool
	default:
		return nil, false
	}
	definition, ok := source[name]
	if !ok {
		return nil, false
	}

	key := file + "#" + name
	if r.visiting[key] {
		// Cycle: keep the reference rather than recurse forever.
		return nil, false
	}
	r.visiting[key] = true
	resolved := r.resolve(definition)
	delete(r.visiting, key)
	return resolved, true
}

func definitionsOf(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	defs, _ := doc["definitions"].(map[string]any)
	return defs
}
