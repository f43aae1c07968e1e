package compiler

import "github.com/vibetrade/studio/internal/domain/slots"

// extractCondition pulls the runnable condition tree out of effective slots.
// event.condition wins over event.regime. A node with a "type" field is
// already a condition tree and passes through verbatim; a node with a
// "metric" field is a bare regime spec and gets wrapped.
func extractCondition(effective slots.Tree) map[string]any {
	for _, key := range []string{"condition", "regime"} {
		node, ok := slots.Object(effective, "event", key)
		if !ok {
			continue
		}
		if _, hasType := node["type"]; hasType {
			return node
		}
		if _, hasMetric := node["metric"]; hasMetric {
			return map[string]any{"type": "regime", "regime": node}
		}
	}
	return nil
}

func extractExecution(effective slots.Tree) map[string]any {
	node, ok := slots.Object(effective, "action", "execution")
	if !ok {
		return nil
	}
	return node
}

func extractSizing(effective slots.Tree) map[string]any {
	node, ok := slots.Object(effective, "action", "sizing")
	if !ok {
		return nil
	}
	return node
}
