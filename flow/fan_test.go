package flow

import (
	"context"
	"testing"
	"time"

	"github.com/flowbridge/flowbridge/flow/adapters/mock"
	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type FanSuite struct {
	testsuite.Suite
}

func TestFanSuite(t *testing.T) {
	testsuite.Run(t, new(FanSuite))
}

func fanTestConfig(resolver DestinationResolverConfig) FlowConfig {
	return FlowConfig{
		Mode:       ModeFan,
		ThreadPool: ThreadPoolConfig{MaxWorkers: 2, QueueSize: 16},
		Fan: &FanConfig{
			Source:              AdapterRef{Driver: "mock"},
			SourceTopic:         "events",
			Destination:         AdapterRef{Driver: "mock"},
			DestinationResolver: resolver,
		},
	}
}

func (s *FanSuite) TestRoutesByHeader() {
	src := mock.NewSource()
	dest := mock.NewPublisher()
	cfg := fanTestConfig(DestinationResolverConfig{Type: ResolverHeader, Key: "event-type"})

	f, err := NewFanFlow(cfg, src, dest, nil)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	src.Feed(&Message{Payload: []byte("p1"), Topic: "events", Headers: map[string]string{"event-type": "orders"}})
	src.Feed(&Message{Payload: []byte("p2"), Topic: "events"})

	s.Eventually(func() bool { return len(dest.Published()) == 2 }, time.Second, 5*time.Millisecond)

	published := dest.Published()
	topics := map[string]bool{}
	for _, p := range published {
		topics[p.Topic] = true
	}
	s.True(topics["orders"])
	s.True(topics[defaultFanTopic], "message with no event-type header should fall back to the default topic")

	f.Shutdown(context.Background())
	s.Require().NoError(<-runDone)
}

func (s *FanSuite) TestRoutesByPayloadKey() {
	src := mock.NewSource()
	dest := mock.NewPublisher()
	cfg := fanTestConfig(DestinationResolverConfig{Type: ResolverPayloadKey, Key: "kind"})

	f, err := NewFanFlow(cfg, src, dest, nil)
	s.Require().NoError(err)

	runDone := make(chan error, 1)
	go func() { runDone <- f.Run(context.Background()) }()

	src.Feed(&Message{Payload: []byte(`{"kind":"shipments","id":1}`), Topic: "events"})
	src.Feed(&Message{Payload: []byte(`not json`), Topic: "events"})

	s.Eventually(func() bool { return len(dest.Published()) == 2 }, time.Second, 5*time.Millisecond)

	topics := map[string]bool{}
	for _, p := range dest.Published() {
		topics[p.Topic] = true
	}
	s.True(topics["shipments"])
	s.True(topics[defaultFanTopic], "unparsable payload should fall back to the default topic")

	f.Shutdown(context.Background())
	s.Require().NoError(<-runDone)
}
