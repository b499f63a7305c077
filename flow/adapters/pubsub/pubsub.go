// Package pubsub adapts cloud.google.com/go/pubsub to the flow.Source and
// flow.Publisher contracts (spec.md §4.10).
package pubsub

import (
	"context"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
)

// Config carries the fields an AdapterRef.Connection map is expected to
// decode into for driver "pubsub".
type Config struct {
	ProjectID string `yaml:"project_id"`
}

// Source wraps a pubsub.Subscription's Receive callback loop, buffering
// into a channel so it can be exposed as a pull-style flow.Source.
type Source struct {
	cfg    Config
	client *pubsub.Client

	msgs   chan *pubsub.Message
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]*pubsub.Message
}

func NewSource(cfg Config) *Source {
	return &Source{
		cfg:     cfg,
		msgs:    make(chan *pubsub.Message, 64),
		pending: make(map[string]*pubsub.Message),
	}
}

func (s *Source) Connect(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, s.cfg.ProjectID)
	if err != nil {
		return apperr.Connection("pubsub: client creation failed", err)
	}
	s.client = client
	return nil
}

// Subscribe treats each entry in topics as a subscription ID (Pub/Sub
// consumes from subscriptions, not topics directly); it starts one
// Receive loop per subscription, all feeding the same channel.
func (s *Source) Subscribe(ctx context.Context, topics []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, subID := range topics {
		sub := s.client.Subscription(subID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sub.Receive(runCtx, func(_ context.Context, m *pubsub.Message) {
				s.mu.Lock()
				s.pending[m.ID] = m
				s.mu.Unlock()
				select {
				case s.msgs <- m:
				case <-runCtx.Done():
				}
			})
		}()
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()
	return nil
}

func (s *Source) Next(ctx context.Context) (*flow.Message, bool, error) {
	select {
	case m, ok := <-s.msgs:
		if !ok {
			return nil, false, nil
		}
		msg := &flow.Message{
			ID:      uuid.NewString(),
			Payload: m.Data,
			Topic:   "",
			Headers: m.Attributes,
		}
		if m.OrderingKey != "" {
			key := m.OrderingKey
			msg.Key = &key
		}
		ts := m.PublishTime
		msg.Timestamp = &ts
		id := m.ID
		msg.Offset = &id
		// Stash the pubsub message ID in the flow message's own ID so
		// Commit can find it again in s.pending.
		msg.ID = id
		return msg, true, nil

	case <-ctx.Done():
		return nil, false, nil
	case <-s.done:
		return nil, false, nil
	}
}

func (s *Source) Commit(ctx context.Context, msg *flow.Message) error {
	s.mu.Lock()
	m, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	m.Ack()
	return nil
}

func (s *Source) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Publisher publishes to the Pub/Sub topic given on each Publish call,
// caching one topic handle per topic name.
type Publisher struct {
	cfg    Config
	client *pubsub.Client
	topics sync.Map // topic name -> *pubsub.Topic
}

func NewPublisher(cfg Config) *Publisher { return &Publisher{cfg: cfg} }

func (p *Publisher) Connect(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, p.cfg.ProjectID)
	if err != nil {
		return apperr.Connection("pubsub: client creation failed", err)
	}
	p.client = client
	return nil
}

func (p *Publisher) topicHandle(name string) *pubsub.Topic {
	if t, ok := p.topics.Load(name); ok {
		return t.(*pubsub.Topic)
	}
	t := p.client.Topic(name)
	p.topics.Store(name, t)
	return t
}

func (p *Publisher) Publish(ctx context.Context, msg *flow.Message, topic string) error {
	t := p.topicHandle(topic)

	pm := &pubsub.Message{Data: msg.Payload, Attributes: msg.Headers}
	if msg.Key != nil {
		pm.OrderingKey = *msg.Key
	}

	result := t.Publish(ctx, pm)
	if _, err := result.Get(ctx); err != nil {
		return apperr.Transient("pubsub: publish failed", err)
	}
	return nil
}

func (p *Publisher) Flush(ctx context.Context) error {
	p.topics.Range(func(_, v interface{}) bool {
		v.(*pubsub.Topic).Stop()
		return true
	})
	return nil
}

func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
