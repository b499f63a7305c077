package flow

import (
	"testing"
	"time"

	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type GateSuite struct {
	testsuite.Suite
}

func TestGateSuite(t *testing.T) {
	testsuite.Run(t, new(GateSuite))
}

func (s *GateSuite) TestWaitReturnsImmediatelyWhenDisabled() {
	q := newBoundedQueue(1)
	q.put(s.Ctx, queueItem{msg: &Message{}})

	g := newBackpressureGate(BackPressureConfig{Enabled: false}, q, func() bool { return true })

	done := make(chan struct{})
	go func() { g.wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		s.Fail("wait should not block when back-pressure is disabled")
	}
}

func (s *GateSuite) TestWaitReturnsImmediatelyBelowHighWatermark() {
	q := newBoundedQueue(10)
	g := newBackpressureGate(BackPressureConfig{Enabled: true, HighWatermark: 0.8, LowWatermark: 0.2}, q, func() bool { return true })

	done := make(chan struct{})
	go func() { g.wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		s.Fail("wait should not block below the high watermark")
	}
}

func (s *GateSuite) TestWaitBlocksUntilLowWatermark() {
	q := newBoundedQueue(10)
	for i := 0; i < 9; i++ {
		q.put(s.Ctx, queueItem{msg: &Message{}})
	}
	g := newBackpressureGate(BackPressureConfig{Enabled: true, HighWatermark: 0.8, LowWatermark: 0.2}, q, func() bool { return true })

	done := make(chan struct{})
	go func() { g.wait(); close(done) }()

	select {
	case <-done:
		s.Fail("wait should block at 0.9 fill ratio with a 0.8 high watermark")
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < 8; i++ {
		q.get(time.Second)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("wait did not unblock once fill ratio dropped to the low watermark")
	}
}

func (s *GateSuite) TestWaitUnblocksWhenNotRunning() {
	q := newBoundedQueue(10)
	for i := 0; i < 9; i++ {
		q.put(s.Ctx, queueItem{msg: &Message{}})
	}
	running := false
	g := newBackpressureGate(BackPressureConfig{Enabled: true, HighWatermark: 0.8, LowWatermark: 0.2}, q, func() bool { return running })

	done := make(chan struct{})
	go func() { g.wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("wait should return once running() reports false, even above the low watermark")
	}
}
