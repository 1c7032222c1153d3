// Package selfmetrics implements the runtime's own instrumentation: the
// MetricKey/MetricValue shape every component publishes through, and the
// always-present self-metrics source the manager writes to and other sinks
// subscribe to or pull from.
package selfmetrics

// CounterType classifies how a published value should be combined with any
// prior value recorded under the same MetricKey.
type CounterType int

const (
	// Current replaces the previous value outright (a gauge reading).
	Current CounterType = iota
	// Increment adds to the previous value (a running counter).
	Increment
	// Average replaces the previous value with (previous+new)/2, so older
	// observations carry ever smaller weight; it is not the arithmetic mean
	// of all observations.
	Average
)

// String renders the counter type for logging.
func (c CounterType) String() string {
	switch c {
	case Current:
		return "current"
	case Increment:
		return "increment"
	case Average:
		return "average"
	default:
		return "unknown"
	}
}

// MetricKey identifies a metric series. Dimensions is an optional set of
// label values; two keys with the same Name but different Dimensions are
// distinct series but collapse to one bucket when aggregated by name.
type MetricKey struct {
	Name       string
	Category   string
	Dimensions map[string]string
}

// MetricValue is one observation of a MetricKey.
type MetricValue struct {
	Value       float64
	Unit        string
	CounterType CounterType
}

// Publisher is the handle components use to report self-metrics. The
// manager passes the same Publisher into every PluginContext.
type Publisher interface {
	Publish(id, category string, counterType CounterType, values map[string]float64)
}

// SourceID is the reserved component id for the self-metrics source, always
// present from the first load step regardless of what Sources declares.
const SourceID = "__self_metrics__"
