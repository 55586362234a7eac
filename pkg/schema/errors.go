package schema

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid or inconsistent schema declaration.
// It is fatal: callers surface it at startup and never retry.
type ConfigError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Type != "" {
		parts = append(parts, fmt.Sprintf("type %q", e.Type))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field %q", e.Field))
	}
	if len(parts) == 0 {
		return "schema config: " + e.Reason
	}
	return fmt.Sprintf("schema config: %s: %s", strings.Join(parts, " "), e.Reason)
}

func configErr(docType, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Type:   docType,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}
