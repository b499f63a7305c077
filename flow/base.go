package flow

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowbridge/flowbridge/internal/obslog"
	"github.com/flowbridge/flowbridge/internal/syncutil"
)

const (
	// dequeueTimeout bounds how long a domain/publish worker blocks on an
	// empty queue before re-checking the running flag (spec.md §4.5:
	// "within one dequeue-timeout tick").
	dequeueTimeout = 100 * time.Millisecond

	// shutdownJoinTimeout bounds how long shutdown waits for worker pools
	// to join before abandoning them (spec.md §5, daemon semantics).
	shutdownJoinTimeout = 5 * time.Second
)

// queueItem carries a message plus its resolved destination topic through
// Qd and Qp. commit, when non-nil, defers that message's source commit to
// the publish worker's completion of a successful publish instead of the
// consumer doing it immediately after enqueue (FlowConfig.CommitAfterPublish).
type queueItem struct {
	msg       *Message
	destTopic string
	commit    func(ctx context.Context) error
}

// base is the flow base of spec.md §4.5: it owns Qd and Qp, the domain and
// publish worker pools, the running flag, and the shutdown protocol. Every
// topology (funnel, fan, one-to-one) embeds a *base and differs only in how
// it drives messages into Qd.
type base struct {
	cfg       FlowConfig
	transform Transform
	publisher Publisher
	metrics   *MetricsRegistry

	qd *boundedQueue
	qp *boundedQueue

	gateQd *backpressureGate
	gateQp *backpressureGate

	running atomic.Bool

	shutdownCh   chan struct{}
	teardownDone chan struct{}
	shutdownOnce sync.Once

	domainWorkers  syncutil.WorkerGroup
	publishWorkers syncutil.WorkerGroup

	// cancel stops the consumer tasks' context, unblocking any Source.Next
	// call that respects context cancellation. consumerWG is joined before
	// Qd is drained, so no consumer can enqueue after Qd starts closing.
	// closeSources is supplied by the topology (it may own >1 source).
	cancel       context.CancelFunc
	consumerWG   sync.WaitGroup
	closeSources func() error
}

func newBase(cfg FlowConfig, transform Transform, publisher Publisher, metrics *MetricsRegistry) *base {
	if transform == nil {
		transform = IdentityTransform
	}

	b := &base{
		cfg:          cfg,
		transform:    transform,
		publisher:    publisher,
		metrics:      metrics,
		qd:           newBoundedQueue(cfg.ThreadPool.QueueSize),
		qp:           newBoundedQueue(cfg.ThreadPool.QueueSize),
		shutdownCh:   make(chan struct{}),
		teardownDone: make(chan struct{}),
	}
	b.running.Store(true)
	b.gateQd = newBackpressureGate(cfg.BackPressure, b.qd, b.running.Load)
	b.gateQp = newBackpressureGate(cfg.BackPressure, b.qp, b.running.Load)
	return b
}

// isRunning reports whether the flow has not yet begun shutdown.
func (b *base) isRunning() bool {
	return b.running.Load()
}

// enqueueDomain applies Qd's back-pressure gate and then blocking-puts item
// into Qd. Consumers call this after recording source metrics and before
// committing (spec.md §4.6/§4.7/§4.8, step "gate, then put, then commit").
func (b *base) enqueueDomain(ctx context.Context, item queueItem) {
	b.gateQd.wait()
	b.qd.put(ctx, item)
}

// startWorkers spawns MaxWorkers domain workers and MaxWorkers publish
// workers (spec.md §4.5).
func (b *base) startWorkers(ctx context.Context) {
	n := b.cfg.ThreadPool.MaxWorkers
	b.domainWorkers.Go(n, func(i int) { b.domainWorkerLoop(ctx) })
	b.publishWorkers.Go(n, func(i int) { b.publishWorkerLoop(ctx) })
}

// domainWorkerLoop is the domain worker of spec.md §4.5: dequeue from Qd
// with a bounded timeout, transform, gate on Qp, put into Qp; any error in
// transform is a transient per-message error (logged, error-counted,
// dropped, no retry).
func (b *base) domainWorkerLoop(ctx context.Context) {
	for {
		item, ok := b.qd.get(dequeueTimeout)
		if !ok {
			if !b.isRunning() {
				return
			}
			continue
		}

		func() {
			defer b.qd.taskDone()
			defer func() {
				if r := recover(); r != nil {
					obslog.L().ErrorContext(ctx, "transform panicked, dropping message",
						"topic", item.msg.Topic, "panic", r, "stack", string(debug.Stack()))
					b.metrics.RecordSourceError(item.msg.Topic)
				}
			}()

			processed, err := b.transform.Process(ctx, item.msg)
			if err != nil {
				obslog.L().ErrorContext(ctx, "transform failed, dropping message",
					"topic", item.msg.Topic, "error", err)
				b.metrics.RecordSourceError(item.msg.Topic)
				return
			}

			b.gateQp.wait()
			b.qp.put(ctx, queueItem{msg: processed, destTopic: item.destTopic, commit: item.commit})
		}()
	}
}

// publishWorkerLoop is the publish worker of spec.md §4.5: dequeue from Qp,
// publish, record destination metrics, optionally run the deferred commit.
func (b *base) publishWorkerLoop(ctx context.Context) {
	for {
		item, ok := b.qp.get(dequeueTimeout)
		if !ok {
			if !b.isRunning() {
				return
			}
			continue
		}

		func() {
			defer b.qp.taskDone()
			defer func() {
				if r := recover(); r != nil {
					obslog.L().ErrorContext(ctx, "publish panicked, dropping message",
						"topic", item.destTopic, "panic", r, "stack", string(debug.Stack()))
					b.metrics.RecordDestinationError(item.destTopic)
				}
			}()

			err := b.publisher.Publish(ctx, item.msg, item.destTopic)
			if err != nil {
				obslog.L().ErrorContext(ctx, "publish failed, dropping message",
					"topic", item.destTopic, "error", err)
				b.metrics.RecordDestinationError(item.destTopic)
				return
			}

			b.metrics.RecordDestination(item.destTopic, item.msg.Size())

			if item.commit != nil {
				if cErr := item.commit(ctx); cErr != nil {
					obslog.L().WarnContext(ctx, "commit after publish failed",
						"topic", item.destTopic, "error", cErr)
				}
			}
		}()
	}
}

// shutdownRequested returns a channel closed as soon as shutdown begins,
// before teardown has finished. Consumer loops select on it (alongside
// their context) to stop pulling from their source.
func (b *base) shutdownRequested() <-chan struct{} {
	return b.shutdownCh
}

// awaitTeardown blocks until shutdown has fully completed. Run()
// implementations block on this so that "run() blocks until shutdown()
// completes" (spec.md §6) holds regardless of which goroutine called
// Shutdown().
func (b *base) awaitTeardown() {
	<-b.teardownDone
}

// shutdown runs the protocol of spec.md §4.5. It is idempotent and safe to
// call from any goroutine: the first caller runs the full teardown: it
// stops consumer tasks, drains Qd and Qp, joins the worker pools (bounded
// by shutdownJoinTimeout), then flushes/closes the publisher and the
// topology's source(s). Every caller, including the first, blocks until
// teardown is complete.
func (b *base) shutdown(ctx context.Context) {
	b.shutdownOnce.Do(func() {
		b.running.Store(false)
		close(b.shutdownCh)

		if b.cancel != nil {
			b.cancel()
		}
		b.consumerWG.Wait()

		b.qd.closeQueue()
		b.qd.join()
		b.qp.closeQueue()
		b.qp.join()

		joined := make(chan struct{})
		go func() {
			b.domainWorkers.Wait()
			b.publishWorkers.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(shutdownJoinTimeout):
			obslog.L().Warn("flow shutdown: worker pools did not join within timeout, abandoning")
		}

		if err := b.publisher.Flush(ctx); err != nil {
			obslog.L().ErrorContext(ctx, "publisher flush failed during shutdown", "error", err)
		}
		if err := b.publisher.Close(); err != nil {
			obslog.L().ErrorContext(ctx, "publisher close failed during shutdown", "error", err)
		}
		if b.closeSources != nil {
			if err := b.closeSources(); err != nil {
				obslog.L().ErrorContext(ctx, "source close failed during shutdown", "error", err)
			}
		}

		close(b.teardownDone)
	})

	<-b.teardownDone
}
