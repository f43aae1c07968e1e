package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for studio telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrToolName labels metrics with the tool operation invoked (create_card, compile_strategy, ...).
	AttrToolName = attribute.Key("tool.name")
	// AttrArchetypeKind captures the archetype family (entry, gate, exit, overlay).
	AttrArchetypeKind = attribute.Key("archetype.kind")
	// AttrArchetypeType captures the full archetype type id (e.g. entry.trend_pullback).
	AttrArchetypeType = attribute.Key("archetype.type")
	// AttrStatusHint records the compile outcome hint (ready, fix_required).
	AttrStatusHint = attribute.Key("status.hint")
	// AttrIssueCode categorizes compile findings by their stable code.
	AttrIssueCode = attribute.Key("issue.code")
	// AttrResult records the outcome of an operation (success, error class, etc.).
	AttrResult = attribute.Key("result")
	// AttrErrorCode categorizes failures by the structured error code.
	AttrErrorCode = attribute.Key("error.code")
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
)

// ToolAttributes returns common attributes for tool call metrics.
func ToolAttributes(environment, tool, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrToolName.String(tool),
		AttrResult.String(result),
	}
}

// CompileAttributes returns attributes for compile outcome metrics.
func CompileAttributes(environment, statusHint string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStatusHint.String(statusHint),
	}
}

// IssueAttributes returns attributes for per-issue compile metrics.
func IssueAttributes(environment, issueCode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrIssueCode.String(issueCode),
	}
}

// ErrorAttributes returns attributes for structured error metrics.
func ErrorAttributes(environment, errorCode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrErrorCode.String(errorCode),
	}
}
