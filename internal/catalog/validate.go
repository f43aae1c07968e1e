package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas are registered under a synthetic base so the relative
// "common_defs.schema.json#/..." references in catalog files resolve to the
// shared pool resource.
const schemaBaseURL = "https://vibetrade.studio/schemas/"

// Validator checks slot documents against archetype slot schemas. Compiled
// schemas are cached per type and etag, so a catalog refresh with a new etag
// recompiles while steady-state validation stays allocation-light.
type Validator struct {
	catalog *Catalog

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns a validator over the catalog's slot schemas.
func NewValidator(c *Catalog) *Validator {
	return &Validator{
		catalog:  c,
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// ValidateSlots validates a slot document against the schema registered for
// typeID. It returns one actionable message per violation; an empty slice
// means the document is valid. Schema problems, including references into a
// missing definitions pool, surface as validation messages rather than
// errors: the only error conditions are an unknown type id or an unreadable
// catalog.
func (v *Validator) ValidateSlots(typeID string, slotDoc map[string]any) ([]string, error) {
	schema, err := v.catalog.Schema(typeID)
	if err != nil {
		return nil, err
	}

	compiled, compileErr := v.compile(schema)
	if compileErr != nil {
		return []string{fmt.Sprintf("Validation error at 'root': %v", compileErr)}, nil
	}

	if slotDoc == nil {
		slotDoc = map[string]any{}
	}
	err = compiled.Validate(normalizeInstance(slotDoc))
	if err == nil {
		return nil, nil
	}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return []string{fmt.Sprintf("Validation error at 'root': %v", err)}, nil
	}
	return v.formatViolations(v.hintSchema(schema), validationErr), nil
}

// hintSchema returns the schema the range hints walk. Hints follow literal
// properties nodes, so fields defined through $ref into the shared pool only
// carry their enum and bound context once the references are inlined.
func (v *Validator) hintSchema(schema *Schema) map[string]any {
	resolved, err := v.catalog.ResolvedSchema(schema.TypeID)
	if err != nil {
		return schema.JSONSchema
	}
	return resolved.JSONSchema
}

// SchemaEtag returns the current etag for typeID.
func (v *Validator) SchemaEtag(typeID string) (string, error) {
	schema, err := v.catalog.Schema(typeID)
	if err != nil {
		return "", err
	}
	return schema.Etag, nil
}

func (v *Validator) compile(schema *Schema) (*jsonschema.Schema, error) {
	key := schema.TypeID + "@" + schema.Etag
	v.mu.Lock()
	cached, ok := v.compiled[key]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	defs, err := v.catalog.CommonDefs()
	if err != nil {
		return nil, err
	}
	if defs != nil {
		raw, err := json.Marshal(defs)
		if err != nil {
			return nil, fmt.Errorf("encode definitions pool: %w", err)
		}
		if err := compiler.AddResource(schemaBaseURL+commonDefsFile, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("register definitions pool: %w", err)
		}
	}

	raw, err := json.Marshal(schema.JSONSchema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	url := schemaBaseURL + schema.TypeID + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("register schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.compiled[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}

func (v *Validator) formatViolations(rawSchema map[string]any, err *jsonschema.ValidationError) []string {
	leaves := collectLeaves(err, nil)
	seen := make(map[string]bool, len(leaves))
	messages := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		path := pointerToPath(leaf.InstanceLocation)
		msg := fmt.Sprintf("Validation error at '%s': %s", path, leaf.Message)
		msg += rangeHint(rawSchema, leaf.InstanceLocation)
		if !seen[msg] {
			seen[msg] = true
			messages = append(messages, msg)
		}
	}
	sort.Strings(messages)
	return messages
}

func collectLeaves(err *jsonschema.ValidationError, acc []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return append(acc, err)
	}
	for _, cause := range err.Causes {
		acc = collectLeaves(cause, acc)
	}
	return acc
}

// pointerToPath renders a JSON pointer as the dotted path used in messages,
// with "root" for the document itself.
func pointerToPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return "root"
	}
	segments := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, segment := range segments {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segments[i] = strings.ReplaceAll(segment, "~0", "~")
	}
	return strings.Join(segments, ".")
}

// rangeHint appends enum and bound context from the raw schema so agents can
// repair a value without a second schema fetch.
func rangeHint(rawSchema map[string]any, pointer string) string {
	if pointer == "" {
		return ""
	}
	node := rawSchema
	for _, segment := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		properties, ok := node["properties"].(map[string]any)
		if !ok {
			return ""
		}
		node, ok = properties[segment].(map[string]any)
		if !ok {
			return ""
		}
	}

	var hint strings.Builder
	if enum, ok := node["enum"].([]any); ok && len(enum) > 0 {
		values := make([]string, len(enum))
		for i, v := range enum {
			values[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintf(&hint, " (must be one of: %s)", strings.Join(values, ", "))
	}
	minVal, hasMin := node["minimum"]
	maxVal, hasMax := node["maximum"]
	switch {
	case hasMin && hasMax:
		fmt.Fprintf(&hint, " (must be between %v and %v)", minVal, maxVal)
	case hasMin:
		fmt.Fprintf(&hint, " (must be >= %v)", minVal)
	case hasMax:
		fmt.Fprintf(&hint, " (must be <= %v)", maxVal)
	}
	return hint.String()
}

// normalizeInstance round-trips the document through the JSON codec so
// numeric values carry the types the schema engine expects regardless of how
// the caller built the map.
func normalizeInstance(doc map[string]any) any {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}
