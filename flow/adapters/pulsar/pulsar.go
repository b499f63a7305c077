// Package pulsar adapts github.com/apache/pulsar-client-go to the
// flow.Source and flow.Publisher contracts (spec.md §4.10).
package pulsar

import (
	"context"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
)

// Config carries the fields an AdapterRef.Connection map is expected to
// decode into for driver "pulsar".
type Config struct {
	ServiceURL       string `yaml:"service_url"`
	SubscriptionName string `yaml:"subscription_name"`
}

// Source wraps a single pulsar.Consumer subscribed (Shared mode, so
// multiple flow instances can share a subscription) to one or more topics.
type Source struct {
	cfg      Config
	client   pulsar.Client
	consumer pulsar.Consumer

	// pending maps an emitted flow.Message.ID to the pulsar.Message it was
	// built from, so Commit can ack the exact message without the caller
	// needing to know about pulsar.MessageID.
	pending sync.Map
}

func NewSource(cfg Config) *Source { return &Source{cfg: cfg} }

func (s *Source) Connect(ctx context.Context) error {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: s.cfg.ServiceURL})
	if err != nil {
		return apperr.Connection("pulsar: client creation failed", err)
	}
	s.client = client
	return nil
}

func (s *Source) Subscribe(ctx context.Context, topics []string) error {
	consumer, err := s.client.Subscribe(pulsar.ConsumerOptions{
		Topics:           topics,
		SubscriptionName: s.cfg.SubscriptionName,
		Type:             pulsar.Shared,
	})
	if err != nil {
		return apperr.Connection("pulsar: subscribe failed", err)
	}
	s.consumer = consumer
	return nil
}

func (s *Source) Next(ctx context.Context) (*flow.Message, bool, error) {
	pm, err := s.consumer.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, nil
		}
		return nil, false, apperr.ConsumerStream("pulsar: receive failed", err)
	}

	msg := &flow.Message{
		ID:      uuid.NewString(),
		Payload: pm.Payload(),
		Topic:   pm.Topic(),
		Headers: pm.Properties(),
	}
	if key := pm.Key(); key != "" {
		msg.Key = &key
	}
	ts := pm.PublishTime()
	msg.Timestamp = &ts

	idStr := pm.ID().String()
	msg.Offset = &idStr
	// ackHandle is stashed so Commit can ack the exact message.
	s.pending.Store(msg.ID, pm)

	return msg, true, nil
}

func (s *Source) Commit(ctx context.Context, msg *flow.Message) error {
	v, ok := s.pending.LoadAndDelete(msg.ID)
	if !ok {
		return nil
	}
	return s.consumer.Ack(v.(pulsar.Message))
}

func (s *Source) Close() error {
	if s.consumer != nil {
		s.consumer.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Publisher publishes via one pulsar.Producer at a time: a Publish to a
// topic other than the current producer's closes it and creates a new one
// for that topic.
type Publisher struct {
	cfg      Config
	client   pulsar.Client
	producer pulsar.Producer
}

func NewPublisher(cfg Config) *Publisher { return &Publisher{cfg: cfg} }

func (p *Publisher) Connect(ctx context.Context) error {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: p.cfg.ServiceURL})
	if err != nil {
		return apperr.Connection("pulsar: client creation failed", err)
	}
	p.client = client
	return nil
}

func (p *Publisher) Publish(ctx context.Context, msg *flow.Message, topic string) error {
	if p.producer == nil || p.producer.Topic() != topic {
		producer, err := p.client.CreateProducer(pulsar.ProducerOptions{Topic: topic})
		if err != nil {
			return apperr.Connection("pulsar: producer creation failed", err)
		}
		if p.producer != nil {
			p.producer.Close()
		}
		p.producer = producer
	}

	pm := &pulsar.ProducerMessage{
		Payload:    msg.Payload,
		Properties: msg.Headers,
	}
	if msg.Key != nil {
		pm.Key = *msg.Key
	}

	_, err := p.producer.Send(ctx, pm)
	if err != nil {
		return apperr.Transient("pulsar: publish failed", err)
	}
	return nil
}

func (p *Publisher) Flush(ctx context.Context) error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Flush()
}

func (p *Publisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
