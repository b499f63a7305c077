package flow

import "time"

// gatePollInterval is the nominal 10ms poll interval spec.md §4.4 calls for.
const gatePollInterval = 10 * time.Millisecond

// backpressureGate implements the two-level hysteresis layered on top of a
// boundedQueue (spec.md §4.4). A producer calls wait before put: if
// back-pressure is enabled and the queue's fill ratio is at or above
// highWatermark, the gate blocks until the fill ratio drops to or below
// lowWatermark, or until running() reports the flow is shutting down.
type backpressureGate struct {
	cfg     BackPressureConfig
	queue   *boundedQueue
	running func() bool
}

func newBackpressureGate(cfg BackPressureConfig, queue *boundedQueue, running func() bool) *backpressureGate {
	return &backpressureGate{cfg: cfg, queue: queue, running: running}
}

// wait blocks while the gate is closed. It never blocks when back-pressure
// is disabled — the queue's own blocking put remains the safety net.
func (g *backpressureGate) wait() {
	if !g.cfg.Enabled {
		return
	}
	if g.queue.fillRatio() < g.cfg.HighWatermark {
		return
	}
	for g.running() {
		if g.queue.fillRatio() <= g.cfg.LowWatermark {
			return
		}
		time.Sleep(gatePollInterval)
	}
}
