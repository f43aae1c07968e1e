package catalog

import (
	"errors"
	"strings"
	"testing"
)

func validSlots() map[string]any {
	return map[string]any{
		"context": map[string]any{"tf": "1h", "symbol": "BTC-USD"},
		"event": map[string]any{
			"trend_ma": map[string]any{"kind": "ema", "window": 50},
			"dip_band": map[string]any{"mult": 2.0, "window": 14},
		},
		"action": map[string]any{
			"execution": map[string]any{"order_type": "market"},
			"sizing":    map[string]any{"mode": "risk_based", "risk_pct": 1.0},
		},
	}
}

func TestValidateSlotsAccepts(t *testing.T) {
	v := NewValidator(New(testDataDir))
	errs, err := v.ValidateSlots("entry.trend_pullback", validSlots())
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected valid slots, got %v", errs)
	}
}

func TestValidateSlotsRangeViolationCarriesPathAndBounds(t *testing.T) {
	v := NewValidator(New(testDataDir))
	slots := validSlots()
	slots["event"].(map[string]any)["dip_band"].(map[string]any)["mult"] = 10.0

	errs, err := v.ValidateSlots("entry.trend_pullback", slots)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	if len(errs) == 0 {
		t.Fatalf("expected a violation for mult=10")
	}
	joined := strings.Join(errs, "\n")
	if !strings.Contains(joined, "event.dip_band.mult") {
		t.Fatalf("violation missing dotted path: %q", joined)
	}
	if !strings.Contains(joined, "must be between 0.5 and 5") {
		t.Fatalf("violation missing bound hint: %q", joined)
	}
}

func TestValidateSlotsMissingRequiredField(t *testing.T) {
	v := NewValidator(New(testDataDir))
	slots := validSlots()
	delete(slots["context"].(map[string]any), "tf")

	errs, err := v.ValidateSlots("entry.trend_pullback", slots)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	joined := strings.ToLower(strings.Join(errs, "\n"))
	if !strings.Contains(joined, "tf") {
		t.Fatalf("missing-required violation should name the field: %q", joined)
	}
}

func TestValidateSlotsEnumViolationListsAllowedValues(t *testing.T) {
	v := NewValidator(New(testDataDir))
	slots := validSlots()
	slots["event"].(map[string]any)["trend_ma"].(map[string]any)["kind"] = "wma"

	errs, err := v.ValidateSlots("entry.trend_pullback", slots)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	joined := strings.Join(errs, "\n")
	if !strings.Contains(joined, "must be one of") {
		t.Fatalf("enum violation missing allowed values: %q", joined)
	}
}

func TestValidateSlotsEnumHintForSharedDefinition(t *testing.T) {
	v := NewValidator(New(testDataDir))
	slots := validSlots()
	// context.tf is defined entirely through $ref into the shared pool; the
	// timeframe enum must still reach the hint.
	slots["context"].(map[string]any)["tf"] = "2h"

	errs, err := v.ValidateSlots("entry.trend_pullback", slots)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	joined := strings.Join(errs, "\n")
	if !strings.Contains(joined, "context.tf") {
		t.Fatalf("violation missing dotted path: %q", joined)
	}
	if !strings.Contains(joined, "must be one of: 1m, 5m, 15m, 1h, 4h, 1d") {
		t.Fatalf("shared-definition enum missing from hint: %q", joined)
	}
}

func TestValidateSlotsBoundHintForSharedDefinition(t *testing.T) {
	v := NewValidator(New(testDataDir))
	slots := validSlots()
	slots["action"].(map[string]any)["sizing"].(map[string]any)["risk_pct"] = 50.0

	errs, err := v.ValidateSlots("entry.trend_pullback", slots)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	joined := strings.Join(errs, "\n")
	if !strings.Contains(joined, "action.sizing.risk_pct") {
		t.Fatalf("violation missing dotted path: %q", joined)
	}
	if !strings.Contains(joined, "must be between 0.01 and 10") {
		t.Fatalf("shared-definition bounds missing from hint: %q", joined)
	}
}

func TestValidateSlotsUnknownTypeReturnsNotFound(t *testing.T) {
	v := NewValidator(New(testDataDir))
	if _, err := v.ValidateSlots("nonexistent.archetype", map[string]any{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown type error = %v", err)
	}
}

func TestValidateSlotsMissingDefinitionsPoolIsValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archetypes.json", `[]`)
	// The schema references the shared pool but no pool file exists in dir.
	writeFile(t, dir, "archetype_schema.json", `[
		{"type_id": "entry.orphan", "schema_version": 1, "etag": "W/\"o@1\"",
		 "json_schema": {
			"type": "object",
			"properties": {"context": {"$ref": "common_defs.schema.json#/definitions/context"}}
		 },
		 "constraints": {}, "updated_at": "2026-01-01T00:00:00.000000Z"}
	]`)

	v := NewValidator(New(dir))
	errs, err := v.ValidateSlots("entry.orphan", map[string]any{"context": map[string]any{"tf": "1h"}})
	if err != nil {
		t.Fatalf("missing pool must not be a hard error: %v", err)
	}
	if len(errs) == 0 || !strings.Contains(errs[0], "Validation error at 'root'") {
		t.Fatalf("expected a root validation message, got %v", errs)
	}
}

func TestValidateSlotsNilDocumentFailsRequireds(t *testing.T) {
	v := NewValidator(New(testDataDir))
	errs, err := v.ValidateSlots("entry.trend_pullback", nil)
	if err != nil {
		t.Fatalf("ValidateSlots: %v", err)
	}
	if len(errs) == 0 {
		t.Fatalf("empty document should fail required properties")
	}
}

func TestSchemaEtag(t *testing.T) {
	v := NewValidator(New(testDataDir))
	etag, err := v.SchemaEtag("exit.rule_trigger")
	if err != nil {
		t.Fatalf("SchemaEtag: %v", err)
	}
	if etag != `W/"exit.rule_trigger@2"` {
		t.Fatalf("etag = %q", etag)
	}
}
