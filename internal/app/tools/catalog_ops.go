package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/domain/strategystore"
	"github.com/vibetrade/studio/internal/domain/timestamp"
)

// ArchetypesResponse lists the browsable archetypes.
type ArchetypesResponse struct {
	Types []*catalog.Archetype `json:"types"`
	AsOf  string               `json:"as_of"`
}

// GetArchetypes lists non-deprecated archetypes, optionally filtered by kind.
func (s *Service) GetArchetypes(_ context.Context, kind string) (*ArchetypesResponse, error) {
	if kind != "" && !strategystore.ValidRole(kind) {
		return nil, errs.Validation(
			fmt.Sprintf("Invalid kind: %s. Must be one of: [entry gate exit overlay].", kind),
			errs.WithDetail("kind", kind),
		)
	}
	types, err := s.catalog.Archetypes(kind, false)
	if err != nil {
		return nil, errs.Database("load archetypes", err)
	}
	return &ArchetypesResponse{Types: types, AsOf: timestamp.Now()}, nil
}

// SchemaResponse is a self-contained slot schema payload.
type SchemaResponse struct {
	TypeID        string              `json:"type_id"`
	SchemaVersion int                 `json:"schema_version"`
	Etag          string              `json:"etag"`
	JSONSchema    map[string]any      `json:"json_schema"`
	Constraints   catalog.Constraints `json:"constraints"`
	SlotHints     map[string]any      `json:"slot_hints,omitempty"`
	Examples      []catalog.Example   `json:"examples,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	UpdatedAt     string              `json:"updated_at"`
}

// GetArchetypeSchema returns the slot schema with shared $refs inlined.
// ifNoneMatch is accepted for interface compatibility: the full schema and
// etag round-trip regardless, there is no 304 at this layer.
func (s *Service) GetArchetypeSchema(_ context.Context, typeID, ifNoneMatch string) (*SchemaResponse, error) {
	_ = ifNoneMatch
	schema, err := s.catalog.ResolvedSchema(typeID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, errs.NotFound("Schema", typeID)
	}
	if err != nil {
		return nil, errs.Database("load schema", err)
	}
	return &SchemaResponse{
		TypeID:        schema.TypeID,
		SchemaVersion: schema.SchemaVersion,
		Etag:          schema.Etag,
		JSONSchema:    schema.JSONSchema,
		Constraints:   schema.Constraints,
		SlotHints:     schema.SlotHints,
		Examples:      schema.Examples,
		Notes:         schema.Notes,
		UpdatedAt:     schema.UpdatedAt,
	}, nil
}

// SchemaExampleResponse is one worked slot example for an archetype.
type SchemaExampleResponse struct {
	TypeID           string         `json:"type_id"`
	ExampleSlots     map[string]any `json:"example_slots"`
	HumanDescription string         `json:"human_description,omitempty"`
	SchemaEtag       string         `json:"schema_etag"`
}

// GetSchemaExample returns the example at index for the archetype's schema.
func (s *Service) GetSchemaExample(_ context.Context, typeID string, index int) (*SchemaExampleResponse, error) {
	schema, err := s.catalog.Schema(typeID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, errs.NotFound("Schema", typeID)
	}
	if err != nil {
		return nil, errs.Database("load schema", err)
	}
	if index < 0 || index >= len(schema.Examples) {
		return nil, errs.Validation(
			fmt.Sprintf("Example index %d out of range for %s.", index, typeID),
			errs.WithDetail("example_count", len(schema.Examples)),
			errs.WithDetail("type", typeID),
		)
	}
	example := schema.Examples[index]
	return &SchemaExampleResponse{
		TypeID:           schema.TypeID,
		ExampleSlots:     example.Slots,
		HumanDescription: example.Human,
		SchemaEtag:       schema.Etag,
	}, nil
}
