// Package kafka adapts github.com/IBM/sarama to the flow.Source and
// flow.Publisher contracts (spec.md §4.10).
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
)

// Config carries the fields an AdapterRef.Connection map is expected to
// decode into for driver "kafka".
type Config struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
	ClientID      string   `yaml:"client_id"`
}

// Source consumes from one or more topics via a sarama consumer group,
// exposing them as a single flow.Source pull stream.
type Source struct {
	cfg    Config
	group  sarama.ConsumerGroup
	topics []string

	msgs   chan *flow.Message
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSource constructs an unconnected Kafka source.
func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg, msgs: make(chan *flow.Message, 64)}
}

func (s *Source) Connect(ctx context.Context) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	if s.cfg.ClientID != "" {
		saramaCfg.ClientID = s.cfg.ClientID
	}

	group, err := sarama.NewConsumerGroup(s.cfg.Brokers, s.cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return apperr.Connection("kafka: consumer group creation failed", err)
	}
	s.group = group
	return nil
}

func (s *Source) Subscribe(ctx context.Context, topics []string) error {
	s.topics = topics

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	handler := &consumerGroupHandler{out: s.msgs}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for runCtx.Err() == nil {
			if err := s.group.Consume(runCtx, s.topics, handler); err != nil {
				if runCtx.Err() != nil {
					return
				}
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case err, ok := <-s.group.Errors():
				if !ok {
					return
				}
				_ = err // discarded: surfacing it via Next's error path would require a second channel.
			}
		}
	}()

	return nil
}

func (s *Source) Next(ctx context.Context) (*flow.Message, bool, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, false, nil
		}
		return msg, true, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}

// Commit is a no-op: this adapter marks offsets as consumed inside
// ConsumeClaim immediately after handing the message to Next's channel, matching
// sarama's per-partition auto-mark-then-periodic-commit model. A stricter
// at-least-once deployment should instead buffer the ConsumerGroupSession
// per in-flight message and mark it here.
func (s *Source) Commit(ctx context.Context, msg *flow.Message) error {
	return nil
}

func (s *Source) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.group == nil {
		return nil
	}
	return s.group.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler, converting
// each claimed record into a flow.Message and marking it consumed.
type consumerGroupHandler struct {
	out chan<- *flow.Message
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			msg := &flow.Message{
				ID:      uuid.NewString(),
				Payload: record.Value,
				Topic:   record.Topic,
				Headers: make(map[string]string, len(record.Headers)),
			}
			for _, h := range record.Headers {
				msg.Headers[string(h.Key)] = string(h.Value)
			}
			if len(record.Key) > 0 {
				key := string(record.Key)
				msg.Key = &key
			}
			partition := record.Partition
			msg.Partition = &partition
			offset := fmt.Sprintf("%d", record.Offset)
			msg.Offset = &offset
			ts := record.Timestamp
			msg.Timestamp = &ts

			select {
			case h.out <- msg:
			case <-sess.Context().Done():
				return nil
			}
			sess.MarkMessage(record, "")

		case <-sess.Context().Done():
			return nil
		}
	}
}

// Publisher publishes via a sarama sync producer to the topic given on each
// Publish call.
type Publisher struct {
	cfg      Config
	producer sarama.SyncProducer
}

// NewPublisher constructs an unconnected Kafka publisher.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{cfg: cfg}
}

func (p *Publisher) Connect(ctx context.Context) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	if p.cfg.ClientID != "" {
		saramaCfg.ClientID = p.cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(p.cfg.Brokers, saramaCfg)
	if err != nil {
		return apperr.Connection("kafka: producer creation failed", err)
	}
	p.producer = producer
	return nil
}

func (p *Publisher) Publish(ctx context.Context, msg *flow.Message, topic string) error {
	record := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(msg.Payload),
	}
	if msg.Key != nil {
		record.Key = sarama.ByteEncoder(*msg.Key)
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	record.Headers = append(record.Headers, sarama.RecordHeader{Key: []byte("message-id"), Value: []byte(msg.ID)})

	_, _, err := p.producer.SendMessage(record)
	if err != nil {
		return apperr.Transient("kafka: publish failed", err)
	}
	return nil
}

// Flush is a no-op: the sync producer's SendMessage already waits for the
// broker ack configured by RequiredAcks before returning.
func (p *Publisher) Flush(ctx context.Context) error { return nil }

func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
