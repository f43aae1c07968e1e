// Package catalog serves the read-only archetype registry: archetype
// descriptors, their slot schemas, and the shared definitions pool, loaded
// from per-kind JSON files and cached for the process lifetime.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// ErrNotFound is returned when an archetype or schema id is not in the
// catalog.
var ErrNotFound = errors.New("catalog: not found")

// Hints carry soft usage guidance surfaced to authoring agents.
type Hints struct {
	PreferredTFs []string `json:"preferred_tfs,omitempty"`
}

// Archetype describes one reusable strategy building-block type.
type Archetype struct {
	ID            string   `json:"id"`
	Version       int      `json:"version"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Kind          string   `json:"kind"`
	Tags          []string `json:"tags,omitempty"`
	RequiredSlots []string `json:"required_slots"`
	SchemaEtag    string   `json:"schema_etag"`
	Deprecated    bool     `json:"deprecated,omitempty"`
	Hints         Hints    `json:"hints"`
	UpdatedAt     string   `json:"updated_at"`
}

// Constraints record execution preconditions attached to a schema.
type Constraints struct {
	MinHistoryBars int    `json:"min_history_bars,omitempty"`
	PITSafe        bool   `json:"pit_safe,omitempty"`
	WarmupHint     string `json:"warmup_hint,omitempty"`
}

// Example pairs a human description with a complete valid slot document.
type Example struct {
	Human string         `json:"human"`
	Slots map[string]any `json:"slots"`
}

// Schema is the draft-07 slot schema for one archetype, plus authoring
// metadata. Etag is the stale-write fingerprint cards are stamped with.
type Schema struct {
	TypeID        string         `json:"type_id"`
	SchemaVersion int            `json:"schema_version"`
	Etag          string         `json:"etag"`
	JSONSchema    map[string]any `json:"json_schema"`
	Constraints   Constraints    `json:"constraints"`
	SlotHints     map[string]any `json:"slot_hints,omitempty"`
	Examples      []Example      `json:"examples,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	UpdatedAt     string         `json:"updated_at"`
}

// Per-kind source files. The entry files are required; the rest are merged
// in when present.
var (
	archetypeFiles = []struct {
		name     string
		required bool
	}{
		{"archetypes.json", true},
		{"exit_archetypes.json", false},
		{"gate_archetypes.json", false},
		{"overlay_archetypes.json", false},
	}
	schemaFiles = []struct {
		name     string
		required bool
	}{
		{"archetype_schema.json", true},
		{"exit_archetype_schema.json", false},
		{"gate_archetype_schema.json", false},
		{"overlay_archetype_schema.json", false},
	}
)

const commonDefsFile = "common_defs.schema.json"

// Catalog loads and caches the archetype registry from a data directory.
// Safe for concurrent use; the first read triggers the load.
type Catalog struct {
	dir string

	mu          sync.Mutex
	loaded      bool
	archetypes  map[string]*Archetype
	archOrder   []string
	schemas     map[string]*Schema
	schemaOrder []string
	commonDefs  map[string]any
}

// New returns a catalog over the given data directory.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

func (c *Catalog) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	archetypes := make(map[string]*Archetype)
	var archOrder []string
	for _, file := range archetypeFiles {
		path := filepath.Join(c.dir, file.name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && !file.required {
				continue
			}
			return fmt.Errorf("catalog: read %s: %w", file.name, err)
		}
		list, err := decodeArchetypeFile(data)
		if err != nil {
			return fmt.Errorf("catalog: parse %s: %w", file.name, err)
		}
		for _, arch := range list {
			if _, seen := archetypes[arch.ID]; !seen {
				archOrder = append(archOrder, arch.ID)
			}
			archetypes[arch.ID] = arch
		}
	}

	schemas := make(map[string]*Schema)
	var schemaOrder []string
	for _, file := range schemaFiles {
		path := filepath.Join(c.dir, file.name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && !file.required {
				continue
			}
			return fmt.Errorf("catalog: read %s: %w", file.name, err)
		}
		list, err := decodeSchemaFile(data)
		if err != nil {
			return fmt.Errorf("catalog: parse %s: %w", file.name, err)
		}
		for _, schema := range list {
			if _, seen := schemas[schema.TypeID]; !seen {
				schemaOrder = append(schemaOrder, schema.TypeID)
			}
			schemas[schema.TypeID] = schema
		}
	}

	var commonDefs map[string]any
	defsData, err := os.ReadFile(filepath.Join(c.dir, commonDefsFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(defsData, &commonDefs); err != nil {
			return fmt.Errorf("catalog: parse %s: %w", commonDefsFile, err)
		}
	case os.IsNotExist(err):
		// No shared pool; schemas with external refs fail validation, not load.
	default:
		return fmt.Errorf("catalog: read %s: %w", commonDefsFile, err)
	}

	c.archetypes = archetypes
	c.archOrder = archOrder
	c.schemas = schemas
	c.schemaOrder = schemaOrder
	c.commonDefs = commonDefs
	c.loaded = true
	return nil
}

// Archetypes lists archetypes in file order. kind filters to one kind when
// non-empty; deprecated entries are skipped unless includeDeprecated is set.
func (c *Catalog) Archetypes(kind string, includeDeprecated bool) ([]*Archetype, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	out := make([]*Archetype, 0, len(c.archOrder))
	for _, id := range c.archOrder {
		arch := c.archetypes[id]
		if kind != "" && arch.Kind != kind {
			continue
		}
		if arch.Deprecated && !includeDeprecated {
			continue
		}
		out = append(out, arch)
	}
	return out, nil
}

// Archetype returns the archetype with the given id.
func (c *Catalog) Archetype(id string) (*Archetype, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	arch, ok := c.archetypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return arch, nil
}

// Schema returns the slot schema for the given archetype type id.
func (c *Catalog) Schema(typeID string) (*Schema, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	schema, ok := c.schemas[typeID]
	if !ok {
		return nil, ErrNotFound
	}
	return schema, nil
}

// Schemas lists slot schemas in file order, optionally filtered by the kind
// prefix of the type id.
func (c *Catalog) Schemas(kind string) ([]*Schema, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	out := make([]*Schema, 0, len(c.schemaOrder))
	for _, id := range c.schemaOrder {
		schema := c.schemas[id]
		if kind != "" && kindOf(schema.TypeID) != kind {
			continue
		}
		out = append(out, schema)
	}
	return out, nil
}

// CommonDefs returns the shared definitions pool document, or nil when the
// pool file is absent.
func (c *Catalog) CommonDefs() (map[string]any, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.commonDefs, nil
}

func kindOf(typeID string) string {
	for i := range typeID {
		if typeID[i] == '.' {
			return typeID[:i]
		}
	}
	return typeID
}

func decodeArchetypeFile(data []byte) ([]*Archetype, error) {
	var list []*Archetype
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Archetypes []*Archetype `json:"archetypes"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Archetypes != nil {
		return wrapped.Archetypes, nil
	}
	return nil, errors.New("expected a list or an object with an \"archetypes\" key")
}

func decodeSchemaFile(data []byte) ([]*Schema, error) {
	var list []*Schema
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Schemas []*Schema `json:"schemas"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Schemas != nil {
		return wrapped.Schemas, nil
	}
	return nil, errors.New("expected a list or an object with a \"schemas\" key")
}
