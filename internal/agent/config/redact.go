package config

import "strings"

// RedactedValue replaces any sensitive-looking key's value in a Redact'd
// Document.
const RedactedValue = "***REDACTED***"

// sensitiveKeyFragments are matched case-insensitively against every key in
// a component's free-form settings; Document has no typed Password/APIKey
// fields to target directly, so redaction works against the map-shaped
// sections by key-name heuristic instead.
var sensitiveKeyFragments = []string{
	"password", "secret", "token", "apikey", "api_key",
	"credential", "privatekey", "private_key",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Redact returns a copy of doc with every value whose key looks
// sensitive, in every component's Raw settings and in Metrics/Telemetrics/
// PerformanceCounter, replaced by RedactedValue. Maps nested inside those
// maps are copied and redacted too; slice values are shared with doc and
// are not inspected. Used to build a config
// snapshot safe to show on the performance-counter dashboard or hand to
// support.
func Redact(doc *Document) *Document {
	if doc == nil {
		return nil
	}

	redacted := &Document{
		Sources:            redactSpecs(doc.Sources),
		Sinks:              redactSpecs(doc.Sinks),
		Pipes:              append([]PipeSpec(nil), doc.Pipes...),
		Credentials:        redactSpecs(doc.Credentials),
		Plugins:            redactSpecs(doc.Plugins),
		Metrics:            redactMap(doc.Metrics),
		Telemetrics:        redactMap(doc.Telemetrics),
		PerformanceCounter: redactMap(doc.PerformanceCounter),
		SelfUpdate:         doc.SelfUpdate,
	}
	return redacted
}

func redactSpecs(specs []ComponentSpec) []ComponentSpec {
	if specs == nil {
		return nil
	}
	out := make([]ComponentSpec, len(specs))
	for i, s := range specs {
		out[i] = ComponentSpec{
			Id:   s.Id,
			Type: s.Type,
			Raw:  redactMap(s.Raw),
		}
	}
	return out
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
