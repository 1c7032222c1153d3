// Package binder implements the pipeline binder: the pipe-binding rules that
// connect constructed sources to constructed sinks, either directly,
// through a typed pipe, or via the data-pull registration style.
package binder

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/catalog"
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// Outcome classifies how a pipe entry was bound.
type Outcome int

const (
	// OutcomeFailed means the entry could not be bound at all.
	OutcomeFailed Outcome = iota
	// OutcomeDeclarationOnly means SourceRef was blank; no subscription
	// was created but the entry is still a success.
	OutcomeDeclarationOnly
	// OutcomeDirectSubscribe means the sink subscribed straight to the
	// source with no intermediate pipe.
	OutcomeDirectSubscribe
	// OutcomeTypedPipe means a pipe factory was resolved and both
	// source->pipe and pipe->sink subscriptions were created.
	OutcomeTypedPipe
	// OutcomeDataPull means the sink registered the source as a
	// DataPullSource; no subscription exists.
	OutcomeDataPull
)

// Result is the outcome of binding one pipe entry.
type Result struct {
	PipeId        envelope.ComponentId
	Outcome       Outcome
	Subscriptions []capability.Subscription
	Pipe          capability.Pipe
	Err           error
}

// SourceLookup and SinkLookup resolve a ref to the constructed component
// instance. The manager owns the actual component maps; the binder only
// needs read access by id.
type SourceLookup func(id string) (any, bool)
type SinkLookup func(id string) (any, bool)

// PipeContextBuilder builds the PluginContext for a typed pipe's factory,
// given the upstream/downstream type hints it stashes into Data.
type PipeContextBuilder func(upstreamType, downstreamType string) *plugincontext.Context

// Bind applies the pipe-binding rules to one PipeSpec.
func Bind(
	spec config.PipeSpec,
	lookupSource SourceLookup,
	lookupSink SinkLookup,
	pipeCatalog *catalog.FactoryCatalog[capability.Pipe],
	buildPipeContext PipeContextBuilder,
	sourceTypeName, sinkTypeName string,
) Result {
	id := envelope.ComponentId(spec.Id)
	if id == "" {
		id = envelope.ComponentId(uuid.NewString())
	}

	sink, sinkFound := lookupSink(spec.SinkRef)
	if spec.SinkRef == "" || !sinkFound {
		return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: unknown or missing sinkref %q", spec.SinkRef)}
	}

	if spec.SourceRef == "" {
		return Result{PipeId: id, Outcome: OutcomeDeclarationOnly}
	}

	source, sourceFound := lookupSource(spec.SourceRef)
	if !sourceFound {
		return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: unknown sourceref %q", spec.SourceRef)}
	}

	sourceStream, sourceIsStream := capability.AsEventStreamSource(source)
	sinkStream, sinkIsStream := capability.AsEventStreamSink(sink)
	if sourceIsStream && sinkIsStream {
		return bindEventStream(id, spec.Type, sourceStream, sinkStream, pipeCatalog, buildPipeContext, sourceTypeName, sinkTypeName)
	}

	sourcePull, sourceIsPull := capability.AsDataPullSource(source)
	sinkData, sinkIsData := capability.AsDataSink(sink)
	if sourceIsPull && sinkIsData {
		if err := sinkData.RegisterDataSource(sourcePull); err != nil {
			return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: register data source: %w", err)}
		}
		return Result{PipeId: id, Outcome: OutcomeDataPull}
	}

	return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: %q and %q share no binding capability", spec.SourceRef, spec.SinkRef)}
}

func bindEventStream(
	id envelope.ComponentId,
	pipeType string,
	source capability.EventStreamSource,
	sink capability.EventStreamSink,
	pipeCatalog *catalog.FactoryCatalog[capability.Pipe],
	buildPipeContext PipeContextBuilder,
	sourceTypeName, sinkTypeName string,
) Result {
	if pipeType == "" {
		sub, err := source.Subscribe(sink.Handle)
		if err != nil {
			return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: subscribe: %w", err)}
		}
		return Result{PipeId: id, Outcome: OutcomeDirectSubscribe, Subscriptions: []capability.Subscription{sub}}
	}

	factory, found := pipeCatalog.Lookup(pipeType)
	if !found {
		return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: unknown pipe type %q", pipeType)}
	}

	pipeCtx := buildPipeContext(sourceTypeName, sinkTypeName)

	pipe, err := factory(pipeCtx)
	if err != nil {
		return Result{PipeId: id, Outcome: OutcomeFailed, Err: fmt.Errorf("binder: construct pipe %q: %w", pipeType, err)}
	}

	pipeSub, err := source.Subscribe(pipe.Handle)
	if err != nil {
		return Result{PipeId: id, Outcome: OutcomeFailed, Pipe: pipe, Err: fmt.Errorf("binder: subscribe pipe to source: %w", err)}
	}

	sinkSub, err := pipe.Subscribe(sink.Handle)
	if err != nil {
		pipeSub.Dispose()
		return Result{PipeId: id, Outcome: OutcomeFailed, Pipe: pipe, Err: fmt.Errorf("binder: subscribe sink to pipe: %w", err)}
	}

	return Result{
		PipeId:        id,
		Outcome:       OutcomeTypedPipe,
		Pipe:          pipe,
		Subscriptions: []capability.Subscription{pipeSub, sinkSub},
	}
}
