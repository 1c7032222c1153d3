package telemetry

import (
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

// Batch is the prepared upload unit the telemetry sink sends over its
// transport: one shot of self-metric samples stamped with the time the
// batch was assembled.
type Batch struct {
	Samples     []selfmetrics.Sample `json:"samples"`
	AssembledAt time.Time            `json:"assembledAt"`
}
