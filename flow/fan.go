package flow

import (
	"context"
	"encoding/json"

	"github.com/flowbridge/flowbridge/internal/apperr"
	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/syncutil"
)

// defaultFanTopic is the destination topic used when a message's resolver
// key is missing, unparsable, or the resolver type is unrecognized
// (spec.md §4.7).
const defaultFanTopic = "default"

// FanFlow implements the 1→N topology of spec.md §4.7: one source, with
// each message's destination topic resolved independently, either from a
// header or from a key inside the JSON payload.
type FanFlow struct {
	*base
	source      Source
	sourceTopic string
	resolver    DestinationResolverConfig
}

// NewFanFlow validates cfg (which must carry a populated FanConfig) and
// constructs a fan flow wired to the given source and destination.
func NewFanFlow(cfg FlowConfig, source Source, destination Publisher, transform Transform) (*FanFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeFan || cfg.Fan == nil {
		return nil, apperr.Config("NewFanFlow requires mode=fan with a fan block", nil)
	}

	f := &FanFlow{
		base:        newBase(cfg, transform, destination, NewMetricsRegistry()),
		source:      source,
		sourceTopic: cfg.Fan.SourceTopic,
		resolver:    cfg.Fan.DestinationResolver,
	}
	f.base.closeSources = source.Close
	return f, nil
}

// Metrics exposes the flow's metrics registry (spec.md §6).
func (f *FanFlow) Metrics() *MetricsRegistry { return f.metrics }

// Run connects the source and destination, starts the worker pools, and
// blocks until Shutdown completes.
func (f *FanFlow) Run(ctx context.Context) error {
	if err := f.source.Connect(ctx); err != nil {
		return apperr.Connection("fan: source connect failed", err)
	}
	if err := f.source.Subscribe(ctx, []string{f.sourceTopic}); err != nil {
		return apperr.Connection("fan: subscribe failed", err)
	}
	if err := f.publisher.Connect(ctx); err != nil {
		return apperr.Connection("fan: destination connect failed", err)
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
func (f *FanFlow) Shutdown(ctx context.Context) {
	f.base.shutdown(ctx)
}

func (f *FanFlow) consumeLoop(ctx context.Context) {
	defer f.consumerWG.Done()

	for {
		select {
		case <-f.shutdownRequested():
			return
		default:
		}

		msg, ok, err := f.source.Next(ctx)
		if err != nil {
			obslog.L().ErrorContext(ctx, "fan: consumer stream error, exiting consumer", "error", err)
			return
		}
		if !ok {
			return
		}

		f.metrics.RecordSource(msg.Topic, msg.Size())

		destTopic := f.resolveDestination(msg)

		var commit func(context.Context) error
		if f.cfg.CommitAfterPublish {
			commit = func(cctx context.Context) error { return f.source.Commit(cctx, msg) }
		}

		f.enqueueDomain(ctx, queueItem{msg: msg, destTopic: destTopic, commit: commit})

		if !f.cfg.CommitAfterPublish {
			if err := f.source.Commit(ctx, msg); err != nil {
				obslog.L().WarnContext(ctx, "fan: commit failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}

// resolveDestination implements spec.md §4.7's per-message routing: by
// header, or by a key inside the JSON payload. Any failure to resolve
// (missing header, non-JSON payload, missing key, unknown resolver type)
// falls back to defaultFanTopic rather than dropping the message.
func (f *FanFlow) resolveDestination(msg *Message) string {
	switch f.resolver.Type {
	case ResolverHeader:
		if v, ok := msg.Headers[f.resolver.Key]; ok && v != "" {
			return v
		}
		return defaultFanTopic

	case ResolverPayloadKey:
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return defaultFanTopic
		}
		v, ok := payload[f.resolver.Key]
		if !ok {
			return defaultFanTopic
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return defaultFanTopic
		}
		return s

	default:
		return defaultFanTopic
	}
}
