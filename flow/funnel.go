package flow

import (
	"context"

	"github.com/flowbridge/flowbridge/internal/apperr"
	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/syncutil"
)

// FunnelFlow implements the N→1 topology of spec.md §4.6: many sources
// merge onto one destination topic, one consumer task per source.
type FunnelFlow struct {
	*base
	sources          []Source
	destination      Publisher
	destinationTopic string
}

// NewFunnelFlow validates cfg (which must carry a populated FunnelConfig)
// and constructs a funnel flow wired to the given sources and destination.
func NewFunnelFlow(cfg FlowConfig, sources []Source, destination Publisher, transform Transform) (*FunnelFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeFunnel || cfg.Funnel == nil {
		return nil, apperr.Config("NewFunnelFlow requires mode=funnel with a funnel block", nil)
	}
	if len(sources) != len(cfg.Funnel.Sources) {
		return nil, apperr.Config("number of sources does not match funnel.sources in config", nil)
	}

	f := &FunnelFlow{
		base:             newBase(cfg, transform, destination, NewMetricsRegistry()),
		sources:          sources,
		destination:      destination,
		destinationTopic: cfg.Funnel.DestinationTopic,
	}
	f.base.closeSources = f.closeAllSources
	return f, nil
}

// Metrics exposes the flow's metrics registry (spec.md §6).
func (f *FunnelFlow) Metrics() *MetricsRegistry { return f.metrics }

// Run connects every source and the destination, starts the worker pools,
// spawns one consumer task per source, and blocks until Shutdown completes.
func (f *FunnelFlow) Run(ctx context.Context) error {
	for _, src := range f.sources {
		if err := src.Connect(ctx); err != nil {
			return apperr.Connection("funnel: source connect failed", err)
		}
	}
	if err := f.destination.Connect(ctx); err != nil {
		return apperr.Connection("funnel: destination connect failed", err)
	}

	innerCtx, cancel := context.WithCancel(ctx)
	f.base.cancel = cancel

	f.startWorkers(innerCtx)

	for _, src := range f.sources {
		f.consumerWG.Add(1)
		src := src
		syncutil.SafeGo(innerCtx, func() { f.consumeLoop(innerCtx, src) })
	}

	f.awaitTeardown()
	return nil
}

// Shutdown is idempotent and safe to call from any goroutine.
func (f *FunnelFlow) Shutdown(ctx context.Context) {
	f.base.shutdown(ctx)
}

func (f *FunnelFlow) consumeLoop(ctx context.Context, src Source) {
	defer f.consumerWG.Done()

	for {
		select {
		case <-f.shutdownRequested():
			return
		default:
		}

		msg, ok, err := src.Next(ctx)
		if err != nil {
			obslog.L().ErrorContext(ctx, "funnel: consumer stream error, exiting this source's consumer", "error", err)
			return
		}
		if !ok {
			return
		}

		f.metrics.RecordSource(msg.Topic, msg.Size())

		var commit func(context.Context) error
		if f.cfg.CommitAfterPublish {
			commit = func(cctx context.Context) error { return src.Commit(cctx, msg) }
		}

		f.enqueueDomain(ctx, queueItem{msg: msg, destTopic: f.destinationTopic, commit: commit})

		if !f.cfg.CommitAfterPublish {
			if err := src.Commit(ctx, msg); err != nil {
				obslog.L().WarnContext(ctx, "funnel: commit failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}

func (f *FunnelFlow) closeAllSources() error {
	var firstErr error
	for _, src := range f.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
