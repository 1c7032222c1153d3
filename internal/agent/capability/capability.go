// Package capability defines the small capability-set interfaces the
// pipeline binder inspects at connect time, per the "dynamic dispatch over
// component kinds" design note: tagged variants instead of a deep class
// hierarchy. A source or sink implements one or both of the two coupling
// styles (event-stream or data-pull; the built-in sinks implement both); the
// binder type-asserts for the capability it needs and refuses to bind
// otherwise.
package capability

import (
	"context"

	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
)

// Envelope is the dynamically-typed envelope that crosses component
// boundaries. Concrete sources/sinks/pipes know the real payload type they
// produce or expect and type-assert Payload internally; the binder itself
// never needs to know it.
type Envelope = envelope.Envelope[any]

// Handler receives envelopes pushed by an event-stream source or pipe.
type Handler func(ctx context.Context, env Envelope) error

// Subscription is a disposable token returned by Subscribe. Disposing it
// severs the link; it must be safe to call Dispose more than once.
type Subscription interface {
	Dispose()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

// Dispose implements Subscription.
func (f SubscriptionFunc) Dispose() {
	if f != nil {
		f()
	}
}

// Component is implemented by every source, sink, pipe, and plugin.
type Component interface {
	ID() envelope.ComponentId
}

// Lifecycle is implemented by every component that participates in
// Start/Stop. Start and Stop must each be idempotent on repeat Stop calls;
// double-stop is defined to be a no-op, not an error.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventStreamSource is a source (or pipe, acting as a source to its
// downstream sink) that pushes envelopes to subscribers.
type EventStreamSource interface {
	Component
	// Subscribe registers handler to receive envelopes. The returned
	// Subscription must be disposed to unregister it.
	Subscribe(handler Handler) (Subscription, error)
}

// EventStreamSink is a sink (or pipe, acting as a sink to its upstream
// source) that accepts pushed envelopes.
type EventStreamSink interface {
	Component
	Handle(ctx context.Context, env Envelope) error
}

// DataPullSource is a source a data-sink polls directly rather than
// receiving pushes from.
type DataPullSource interface {
	Component
	Pull(ctx context.Context) (Envelope, bool, error)
}

// DataSink is a sink that pulls from a registered DataPullSource on its own
// schedule instead of being subscribed to.
type DataSink interface {
	Component
	RegisterDataSource(source DataPullSource) error
}

// Pipe transforms envelopes of one payload type into another. It is an
// EventStreamSink to its upstream source and an EventStreamSource to its
// downstream sink, per the two-subscription binding rule for typed pipes.
type Pipe interface {
	Component
	Lifecycle
	EventStreamSink
	EventStreamSource
}

// AsEventStreamSource reports whether c implements EventStreamSource.
func AsEventStreamSource(c any) (EventStreamSource, bool) {
	s, ok := c.(EventStreamSource)
	return s, ok
}

// AsEventStreamSink reports whether c implements EventStreamSink.
func AsEventStreamSink(c any) (EventStreamSink, bool) {
	s, ok := c.(EventStreamSink)
	return s, ok
}

// AsDataPullSource reports whether c implements DataPullSource.
func AsDataPullSource(c any) (DataPullSource, bool) {
	s, ok := c.(DataPullSource)
	return s, ok
}

// AsDataSink reports whether c implements DataSink.
func AsDataSink(c any) (DataSink, bool) {
	s, ok := c.(DataSink)
	return s, ok
}
