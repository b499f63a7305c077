package flow

import (
	"context"

	"github.com/flowbridge/flowbridge/internal/apperr"
	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/syncutil"
)

// OneToOneFlow implements the N parallel pairs topology of spec.md §4.8: a
// single source-topic → destination-topic map, applied statically per
// message by the source topic it arrived on.
type OneToOneFlow struct {
	*base
	source       Source
	sourceTopics []string
	topicMap     map[string]string
}

// NewOneToOneFlow validates cfg (which must carry a populated OneToOneConfig)
// and constructs a one-to-one flow wired to the given source and
// destination.
func NewOneToOneFlow(cfg FlowConfig, source Source, destination Publisher, transform Transform) (*OneToOneFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeOneToOne || cfg.OneToOne == nil {
		return nil, apperr.Config("NewOneToOneFlow requires mode=one_to_one with a one_to_one block", nil)
	}

	topicMap := make(map[string]string, len(cfg.OneToOne.Mappings))
	sourceTopics := make([]string, 0, len(cfg.OneToOne.Mappings))
	for _, m := range cfg.OneToOne.Mappings {
		topicMap[m.SourceTopic] = m.DestinationTopic
		sourceTopics = append(sourceTopics, m.SourceTopic)
	}

	f := &OneToOneFlow{
		base:         newBase(cfg, transform, destination, NewMetricsRegistry()),
		source:       source,
		sourceTopics: sourceTopics,
		topicMap:     topicMap,
	}
	f.base.closeSources = source.Close
	return f, nil
}

// Metrics exposes the flow's metrics registry (spec.md §6).
func (f *OneToOneFlow) Metrics() *MetricsRegistry { return f.metrics }

// Run connects the source and destination, subscribes to every mapped
// source topic, starts the worker pools, and blocks until Shutdown
// completes.
func (f *OneToOneFlow) Run(ctx context.Context) error {
	if err := f.source.Connect(ctx); err != nil {
		return apperr.Connection("one_to_one: source connect failed", err)
	}
	if err := f.source.Subscribe(ctx, f.sourceTopics); err != nil {
		return apperr.Connection("one_to_one: subscribe failed", err)
	}
	if err := f.publisher.Connect(ctx); err != nil {
		return apperr.Connection("one_to_one: destination connect failed", err)
	}

	innerCtx, cancel := context.WithCancel(ctx)
	f.base.cancel = cancel

	f.startWorkers(innerCtx)

	f.consumerWG.Add(1)
	syncutil.SafeGo(innerCtx, func() { f.consumeLoop(innerCtx) })

	f.awaitTeardown()
	return nil
}

// Shutdown is idempotent and safe to call from any goroutine.
func (f *OneToOneFlow) Shutdown(ctx context.Context) {
	f.base.shutdown(ctx)
}

func (f *OneToOneFlow) consumeLoop(ctx context.Context) {
	defer f.consumerWG.Done()

	for {
		select {
		case <-f.shutdownRequested():
			return
		default:
		}

		msg, ok, err := f.source.Next(ctx)
		if err != nil {
			obslog.L().ErrorContext(ctx, "one_to_one: consumer stream error, exiting consumer", "error", err)
			return
		}
		if !ok {
			return
		}

		destTopic, mapped := f.topicMap[msg.Topic]
		if !mapped {
			obslog.L().DebugContext(ctx, "one_to_one: message on unmapped source topic, skipping", "topic", msg.Topic)
			if err := f.source.Commit(ctx, msg); err != nil {
				obslog.L().WarnContext(ctx, "one_to_one: commit of skipped message failed", "topic", msg.Topic, "error", err)
			}
			continue
		}

		f.metrics.RecordSource(msg.Topic, msg.Size())

		var commit func(context.Context) error
		if f.cfg.CommitAfterPublish {
			commit = func(cctx context.Context) error { return f.source.Commit(cctx, msg) }
		}

		f.enqueueDomain(ctx, queueItem{msg: msg, destTopic: destTopic, commit: commit})

		if !f.cfg.CommitAfterPublish {
			if err := f.source.Commit(ctx, msg); err != nil {
				obslog.L().WarnContext(ctx, "one_to_one: commit failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}
