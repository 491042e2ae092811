// Package textutil holds small string cleanup helpers shared by the service
// layer.
package textutil

import "strings"

// NormalizeStringMap trims every key and value, drops entries whose key trims
// to nothing, and returns nil when nothing survives so callers can store the
// result directly in optional document fields.
func NormalizeStringMap(values map[string]string) map[string]string {
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cleaned[key] = strings.TrimSpace(value)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
