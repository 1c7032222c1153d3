package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactMasksSensitiveKeysInComponentRawSettings(t *testing.T) {
	doc := &Document{
		Credentials: []ComponentSpec{{
			Id:   "k8s-1",
			Type: "k8ssecret",
			Raw: map[string]any{
				"namespace":  "monitoring",
				"secretname": "agent-creds",
				"apikey":     "sk-real-value",
			},
		}},
		Sinks: []ComponentSpec{{
			Id:   "telemetry",
			Type: "telemetry",
			Raw: map[string]any{
				"endpoint": "https://telemetry.internal",
				"token":    "s3cr3t",
			},
		}},
	}

	redacted := Redact(doc)

	assert.Equal(t, "monitoring", redacted.Credentials[0].Raw["namespace"])
	assert.Equal(t, RedactedValue, redacted.Credentials[0].Raw["apikey"])
	assert.Equal(t, "https://telemetry.internal", redacted.Sinks[0].Raw["endpoint"])
	assert.Equal(t, RedactedValue, redacted.Sinks[0].Raw["token"])
}

func TestRedactMasksNestedMapsAndLeavesMetricsAlone(t *testing.T) {
	doc := &Document{
		Telemetrics: map[string]any{
			"auth": map[string]any{
				"password": "hunter2",
			},
		},
		Metrics: map[string]any{
			"interval": "30s",
		},
	}

	redacted := Redact(doc)

	nested := redacted.Telemetrics["auth"].(map[string]any)
	assert.Equal(t, RedactedValue, nested["password"])
	assert.Equal(t, "30s", redacted.Metrics["interval"])
}

func TestRedactDoesNotMutateOriginalDocument(t *testing.T) {
	doc := &Document{
		Sinks: []ComponentSpec{{Id: "s", Type: "t", Raw: map[string]any{"secret": "orig"}}},
	}

	redacted := Redact(doc)
	redacted.Sinks[0].Raw["secret"] = "mutated"

	require.Equal(t, "orig", doc.Sinks[0].Raw["secret"])
}

func TestRedactNilDocumentReturnsNil(t *testing.T) {
	assert.Nil(t, Redact(nil))
}
