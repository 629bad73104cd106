package metrics

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrKind    = "kind"
	attrOutcome = "outcome"
	attrStatus  = "status"
	attrMethod  = "method"
	attrPath    = "path"
)

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func itemStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrStatus, status)
}

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func httpStatusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

// normalizePath replaces log ids with a placeholder.
// /log/abc123 -> /log/{id}
func normalizePath(path string) string {
	const prefix = "/log/"
	if idx := strings.Index(path, prefix); idx >= 0 && len(path) > idx+len(prefix) {
		return path[:idx] + "/log/{id}"
	}
	return path
}
