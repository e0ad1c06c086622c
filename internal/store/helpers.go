package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// marshalDescriptors converts descriptors to JSON text for storage.
func marshalDescriptors(ds []Descriptor) string {
	if len(ds) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ds)
	return string(b)
}

// unmarshalDescriptors converts JSON text back to descriptors.
func unmarshalDescriptors(s string) []Descriptor {
	if s == "" || s == "null" {
		return nil
	}
	var ds []Descriptor
	_ = json.Unmarshal([]byte(s), &ds)
	return ds
}
