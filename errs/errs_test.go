package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorStringCarriesCodeAndHint(t *testing.T) {
	err := New(CodeSchemaEtagMismatch,
		WithMessage("schema etag mismatch for entry.trend_pullback"),
		WithHint("Fetch the current schema and re-validate."),
	)
	got := err.Error()
	if !strings.Contains(got, "code=SCHEMA_ETAG_MISMATCH") {
		t.Fatalf("flattened error missing code: %q", got)
	}
	if !strings.Contains(got, "Fetch the current schema") {
		t.Fatalf("flattened error missing recovery hint: %q", got)
	}
}

func TestRetryableCodes(t *testing.T) {
	retryable := []Code{CodeDatabase, CodeNetwork, CodeTimeout}
	for _, code := range retryable {
		if !code.Retryable() {
			t.Fatalf("expected %s to be retryable", code)
		}
	}
	terminal := []Code{CodeNotFound, CodeValidation, CodeSchemaValidation, CodeInvalidRole, CodeInternal}
	for _, code := range terminal {
		if code.Retryable() {
			t.Fatalf("expected %s to be terminal", code)
		}
	}
	if !strings.Contains(Database("load card", errors.New("conn refused")).Error(), "retryable=true") {
		t.Fatalf("transient error should flag retryable in string form")
	}
}

func TestNotFoundSelectsCodeByResource(t *testing.T) {
	cases := []struct {
		resource string
		want     Code
	}{
		{"Card", CodeCardNotFound},
		{"Strategy", CodeStrategyNotFound},
		{"Archetype", CodeArchetypeNotFound},
		{"Schema", CodeSchemaNotFound},
		{"Widget", CodeNotFound},
	}
	for _, tc := range cases {
		err := NotFound(tc.resource, "abc")
		if err.Code != tc.want {
			t.Fatalf("NotFound(%q) code = %s, want %s", tc.resource, err.Code, tc.want)
		}
		if err.RecoveryHint == "" {
			t.Fatalf("NotFound(%q) missing recovery hint", tc.resource)
		}
	}
}

func TestCodeOfUnwrapsThroughWrapping(t *testing.T) {
	inner := NotFound("Strategy", "s-1")
	wrapped := fmt.Errorf("load strategy: %w", inner)
	if got := CodeOf(wrapped); got != CodeStrategyNotFound {
		t.Fatalf("CodeOf(wrapped) = %s, want %s", got, CodeStrategyNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
	envelope, ok := AsE(wrapped)
	if !ok || envelope.Code != CodeStrategyNotFound {
		t.Fatalf("AsE(wrapped) = %v, %v", envelope, ok)
	}
}

func TestDetailsRenderSorted(t *testing.T) {
	err := New(CodeValidation,
		WithDetail("zeta", "z"),
		WithDetail("alpha", 1),
		WithDetail("mid", true),
	)
	got := err.Error()
	alpha := strings.Index(got, "alpha=")
	mid := strings.Index(got, "mid=")
	zeta := strings.Index(got, "zeta=")
	if alpha < 0 || mid < 0 || zeta < 0 || !(alpha < mid && mid < zeta) {
		t.Fatalf("details not sorted: %q", got)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Database("save strategy", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}
