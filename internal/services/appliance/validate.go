package appliance

import (
	"encoding/json"
	"strings"
)

// Minimal expected shapes for the endpoints the UI depends on most.
// Validation is advisory: a mismatch is logged as a warning so schema
// drift shows up early, but the response still counts as success.
var criticalShapes = map[string][]string{
	"/api/stats/summary": {"queries.total", "queries.blocked", "queries.percent_blocked"},
	"/api/dns/blocking":  {"blocking"},
	"/api/auth":          {"session.valid", "session.sid"},
	"/api/queries":       {"queries"},
}

// validate checks the payload of known-critical endpoints against the
// expected minimal schema and logs any missing fields.
func (c *Client) validate(path string, data json.RawMessage) {
	fields := shapeFor(path)
	if fields == nil {
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		// Non-object payloads (e.g. a bare query array) have nothing to check.
		return
	}

	var missing []string
	for _, field := range fields {
		if !hasField(payload, field) {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		c.logger.Warn().Str("path", path).Strs("missing", missing).
			Msg("response shape mismatch, appliance schema may have drifted")
	}
}

// shapeFor matches a request path against the critical-endpoint table.
func shapeFor(path string) []string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	for prefix, fields := range criticalShapes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return fields
		}
	}
	return nil
}

// hasField walks a dotted path through nested JSON objects.
func hasField(payload map[string]interface{}, dotted string) bool {
	parts := strings.Split(dotted, ".")
	current := payload
	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		next, ok := val.(map[string]interface{})
		if !ok {
			return false
		}
		current = next
	}
	return false
}
