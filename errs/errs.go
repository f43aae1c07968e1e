// Package errs provides structured error types and helpers for studio services.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a stable machine-readable error category. The set below is
// a contract with agent callers and must not be renamed.
type Code string

const (
	// CodeNotFound indicates a missing resource of unspecified kind.
	CodeNotFound Code = "NOT_FOUND"
	// CodeCardNotFound indicates the referenced card does not exist.
	CodeCardNotFound Code = "CARD_NOT_FOUND"
	// CodeStrategyNotFound indicates the referenced strategy does not exist.
	CodeStrategyNotFound Code = "STRATEGY_NOT_FOUND"
	// CodeArchetypeNotFound indicates the referenced archetype does not exist.
	CodeArchetypeNotFound Code = "ARCHETYPE_NOT_FOUND"
	// CodeSchemaNotFound indicates no slot schema is registered for the type.
	CodeSchemaNotFound Code = "SCHEMA_NOT_FOUND"
	// CodeValidation indicates invalid input provided by the caller.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeSchemaValidation indicates slot values rejected by a slot schema.
	CodeSchemaValidation Code = "SCHEMA_VALIDATION_ERROR"
	// CodeSchemaEtagMismatch indicates a stale schema fingerprint.
	CodeSchemaEtagMismatch Code = "SCHEMA_ETAG_MISMATCH"
	// CodeInvalidRole indicates an attachment role outside the allowed set.
	CodeInvalidRole Code = "INVALID_ROLE"
	// CodeInvalidStatus indicates a strategy status outside the allowed set.
	CodeInvalidStatus Code = "INVALID_STATUS"
	// CodeDuplicateAttachment indicates the card is already attached.
	CodeDuplicateAttachment Code = "DUPLICATE_ATTACHMENT"
	// CodeAttachmentNotFound indicates the card is not attached to the strategy.
	CodeAttachmentNotFound Code = "ATTACHMENT_NOT_FOUND"
	// CodeDatabase indicates a persistence-layer failure.
	CodeDatabase Code = "DATABASE_ERROR"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "NETWORK_ERROR"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT_ERROR"
	// CodeInternal captures uncategorized failures.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Retryable reports whether the category describes a transient failure an
// agent may retry without changing its input.
func (c Code) Retryable() bool {
	switch c {
	case CodeDatabase, CodeNetwork, CodeTimeout:
		return true
	default:
		return false
	}
}

// E captures structured error information produced across the studio stack.
type E struct {
	Code         Code
	Message      string
	RecoveryHint string
	Details      map[string]any

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the error code.
func New(code Code, opts ...Option) *E {
	e := &E{
		Code:         code,
		Message:      "",
		RecoveryHint: "",
		Details:      nil,
		cause:        nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHint attaches recovery guidance for the caller.
func WithHint(hint string) Option {
	trimmed := strings.TrimSpace(hint)
	return func(e *E) {
		e.RecoveryHint = trimmed
	}
}

// WithDetails merges the provided detail fields into the error envelope.
func WithDetails(details map[string]any) Option {
	return func(e *E) {
		if len(details) == 0 {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]any, len(details))
		}
		for k, v := range details {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			e.Details[key] = v
		}
	}
}

// WithDetail appends a single detail key/value pair.
func WithDetail(key string, value any) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Details == nil {
			e.Details = make(map[string]any, 1)
		}
		e.Details[trimmedKey] = value
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// Error renders the envelope as key=value parts. The code and recovery hint
// always survive flattening so agents reading a bare string keep both.
func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeInternal)
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RecoveryHint != "" {
		parts = append(parts, "hint="+strconv.Quote(e.RecoveryHint))
	}
	if e.Code.Retryable() {
		parts = append(parts, "retryable=true")
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+formatDetail(e.Details[k]))
		}
		parts = append(parts, "details="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

func formatDetail(v any) string {
	switch value := v.(type) {
	case string:
		return strconv.Quote(value)
	case int:
		return strconv.Itoa(value)
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case error:
		return strconv.Quote(value.Error())
	case interface{ String() string }:
		return strconv.Quote(value.String())
	default:
		return strconv.Quote("")
	}
}

// CodeOf extracts the machine code from err, or CodeInternal when err carries
// no envelope.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) && envelope != nil {
		return envelope.Code
	}
	return CodeInternal
}

// AsE returns the structured envelope wrapped anywhere in err's chain.
func AsE(err error) (*E, bool) {
	var envelope *E
	if errors.As(err, &envelope) && envelope != nil {
		return envelope, true
	}
	return nil, false
}

// NotFound returns a standardized missing-resource error. The code is chosen
// from the resource kind so agents can branch without parsing messages.
func NotFound(resource, id string) *E {
	code := CodeNotFound
	hint := "Verify the identifier and try again."
	switch strings.ToLower(strings.TrimSpace(resource)) {
	case "card":
		code = CodeCardNotFound
		hint = "Use list_cards to browse existing cards, or create_card to make a new one."
	case "strategy":
		code = CodeStrategyNotFound
		hint = "Use list_strategies to browse existing strategies, or create_strategy to make a new one."
	case "archetype":
		code = CodeArchetypeNotFound
		hint = "Use get_archetypes to browse the available archetypes."
	case "schema":
		code = CodeSchemaNotFound
		hint = "Use get_archetypes to browse the available archetypes and their schemas."
	}
	return New(code,
		WithMessage(resource+" not found: "+id),
		WithHint(hint),
		WithDetail("resource", resource),
		WithDetail("id", id),
	)
}

// Validation returns a standardized invalid-input error.
func Validation(message string, opts ...Option) *E {
	base := []Option{
		WithMessage(message),
		WithHint("Fix the highlighted fields and retry the call."),
	}
	return New(CodeValidation, append(base, opts...)...)
}

// SchemaValidation returns a standardized slot-schema rejection carrying the
// per-field validation errors in details.
func SchemaValidation(typeID string, validationErrors []string) *E {
	return New(CodeSchemaValidation,
		WithMessage("slots failed schema validation for "+typeID),
		WithHint("Use get_archetype_schema to inspect the slot schema, fix the listed fields, and retry."),
		WithDetail("type", typeID),
		WithDetail("validation_errors", strings.Join(validationErrors, "; ")),
	)
}

// EtagMismatch returns a standardized stale-schema error.
func EtagMismatch(typeID, provided, current string) *E {
	return New(CodeSchemaEtagMismatch,
		WithMessage("schema etag mismatch for "+typeID),
		WithHint("Fetch the current schema with get_archetype_schema and re-validate the slots."),
		WithDetail("type", typeID),
		WithDetail("provided_etag", provided),
		WithDetail("current_etag", current),
	)
}

// Database wraps a persistence failure in a retryable envelope.
func Database(op string, cause error) *E {
	return New(CodeDatabase,
		WithMessage("database operation failed: "+op),
		WithHint("Transient storage failure; retry the call."),
		WithCause(cause),
	)
}

// Timeout wraps a deadline overrun in a retryable envelope.
func Timeout(op string, cause error) *E {
	return New(CodeTimeout,
		WithMessage("operation timed out: "+op),
		WithHint("Retry the call, or narrow the request."),
		WithCause(cause),
	)
}
