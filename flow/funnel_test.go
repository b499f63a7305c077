package flow

import (
	"context"
	"testing"
	"time"

	"github.com/flowbridge/flowbridge/flow/adapters/mock"
	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type FunnelSuite struct {
	testsuite.Suite
}

func TestFunnelSuite(t *testing.T) {
	testsuite.Run(t, new(FunnelSuite))
}

func funnelTestConfig() FlowConfig {
	return FlowConfig{
		Mode:       ModeFunnel,
		ThreadPool: ThreadPoolConfig{MaxWorkers: 2, QueueSize: 16},
		Funnel: &FunnelConfig{
			Sources:          []AdapterRef{{Driver: "mock"}, {Driver: "mock"}},
			Destination:      AdapterRef{Driver: "mock"},
			DestinationTopic: "merged",
		},
	}
}

func (s *FunnelSuite) TestMergesMultipleSourcesOntoOneDestinationTopic() {
	srcA := mock.NewSource()
	srcB := mock.NewSource()
	dest := mock.NewPublisher()

	f, err := NewFunnelFlow(funnelTestConfig(), []Source{srcA, srcB}, dest, nil)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	srcA.Feed(&Message{Payload: []byte("a1"), Topic: "topic-a"})
	srcB.Feed(&Message{Payload: []byte("b1"), Topic: "topic-b"})

	s.Eventually(func() bool {
		return len(dest.Published()) == 2
	}, time.Second, 5*time.Millisecond)

	for _, p := range dest.Published() {
		s.Equal("merged", p.Topic)
	}

	f.Shutdown(context.Background())
	s.Require().NoError(<-runDone)

	s.Equal(1, dest.Flushes())
}

func (s *FunnelSuite) TestCommitAfterPublishDefersCommitUntilPublished() {
	cfg := funnelTestConfig()
	cfg.Funnel.Sources = []AdapterRef{{Driver: "mock"}}
	cfg.CommitAfterPublish = true

	src := mock.NewSource()
	dest := mock.NewPublisher()

	f, err := NewFunnelFlow(cfg, []Source{src}, dest, nil)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	msg := &Message{Payload: []byte("x"), Topic: "in"}
	src.Feed(msg)

	s.Eventually(func() bool {
		return len(src.Committed()) == 1
	}, time.Second, 5*time.Millisecond)

	f.Shutdown(context.Background())
	s.Require().NoError(<-runDone)
}

func (s *FunnelSuite) TestTransformIsAppliedBeforePublish() {
	cfg := funnelTestConfig()
	cfg.Funnel.Sources = []AdapterRef{{Driver: "mock"}}

	src := mock.NewSource()
	dest := mock.NewPublisher()
	upper := TransformFunc(func(_ context.Context, msg *Message) (*Message, error) {
		clone := msg.Clone()
		clone.Payload = []byte("TRANSFORMED")
		return clone, nil
	})

	f, err := NewFunnelFlow(cfg, []Source{src}, dest, upper)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	src.Feed(&Message{Payload: []byte("original"), Topic: "in"})

	s.Eventually(func() bool {
		return len(dest.Published()) == 1
	}, time.Second, 5*time.Millisecond)

	s.Equal("TRANSFORMED", string(dest.Published()[0].Msg.Payload))

	f.Shutdown(context.Background())
	s.Require().NoError(<-runDone)
}

func (s *FunnelSuite) TestShutdownIsIdempotentAndConcurrentCallersBlockUntilDone() {
	cfg := funnelTestConfig()
	cfg.Funnel.Sources = []AdapterRef{{Driver: "mock"}}

	src := mock.NewSource()
	dest := mock.NewPublisher()

	f, err := NewFunnelFlow(cfg, []Source{src}, dest, nil)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			f.Shutdown(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			s.Fail("a concurrent Shutdown caller never returned")
		}
	}

	s.Require().NoError(<-runDone)
}
