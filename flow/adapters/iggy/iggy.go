// Package iggy adapts github.com/iggy-rs/iggy-go-client to the flow.Source
// and flow.Publisher contracts (spec.md §4.10).
//
// Unlike the other five adapters, this one has no production reference to
// imitate: the distillation this module is built from ships Iggy support
// only as an admitted stub (see DESIGN.md). This adapter is a best-effort,
// from-the-SDK-docs implementation rather than one grounded on an observed
// caller.
package iggy

import (
	"context"
	"strconv"
	"sync"

	iggcon "github.com/iggy-rs/iggy-go-client/contracts"
	ige "github.com/iggy-rs/iggy-go-client/iggycon"
	"github.com/google/uuid"

	"github.com/flowbridge/flowbridge/flow"
	"github.com/flowbridge/flowbridge/internal/apperr"
)

// Config carries the fields an AdapterRef.Connection map is expected to
// decode into for driver "iggy".
type Config struct {
	Address      string `yaml:"address"`
	StreamID     uint32 `yaml:"stream_id"`
	TopicID      uint32 `yaml:"topic_id"`
	ConsumerID   uint32 `yaml:"consumer_id"`
	PartitionID  uint32 `yaml:"partition_id"`
}

// Source polls a single Iggy stream/topic/partition in a loop, buffering
// into a channel so it can be exposed as a pull-style flow.Source.
type Source struct {
	cfg    Config
	client ige.Client

	msgs    chan *flow.Message
	offset  uint64
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg, msgs: make(chan *flow.Message, 64)}
}

func (s *Source) Connect(ctx context.Context) error {
	client, err := ige.NewIggyClient(ige.WithServerAddress(s.cfg.Address))
	if err != nil {
		return apperr.Connection("iggy: client creation failed", err)
	}
	s.client = client
	return nil
}

// Subscribe ignores its topics argument: this adapter is scoped to one
// stream/topic/partition set by Config at construction time.
func (s *Source) Subscribe(ctx context.Context, topics []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(runCtx)
	return nil
}

func (s *Source) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		s.mu.Lock()
		offset := s.offset
		s.mu.Unlock()

		polled, err := s.client.PollMessages(iggcon.PollMessagesRequest{
			StreamId:    ige.NewIdentifier(s.cfg.StreamID),
			TopicId:     ige.NewIdentifier(s.cfg.TopicID),
			ConsumerId:  ige.NewIdentifier(s.cfg.ConsumerID),
			PartitionId: s.cfg.PartitionID,
			Count:       100,
			Strategy:    iggcon.MessagePollingStrategy{Kind: iggcon.OffsetPollingStrategy, Value: offset},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for _, m := range polled.Messages {
			msg := &flow.Message{
				ID:      uuid.NewString(),
				Payload: m.Payload,
				Topic:   strconv.FormatUint(uint64(s.cfg.TopicID), 10),
			}
			off := strconv.FormatUint(m.Offset, 10)
			msg.Offset = &off

			select {
			case s.msgs <- msg:
				s.mu.Lock()
				if m.Offset+1 > s.offset {
					s.offset = m.Offset + 1
				}
				s.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}
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

// Commit is a no-op: offset tracking is in-process only (s.offset), so a
// newly constructed Source polls again from offset 0 and redelivers
// messages a previous process already consumed.
func (s *Source) Commit(ctx context.Context, msg *flow.Message) error { return nil }

func (s *Source) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Publisher publishes into a single Iggy stream/topic.
type Publisher struct {
	cfg    Config
	client ige.Client
}

func NewPublisher(cfg Config) *Publisher { return &Publisher{cfg: cfg} }

func (p *Publisher) Connect(ctx context.Context) error {
	client, err := ige.NewIggyClient(ige.WithServerAddress(p.cfg.Address))
	if err != nil {
		return apperr.Connection("iggy: client creation failed", err)
	}
	p.client = client
	return nil
}

func (p *Publisher) Publish(ctx context.Context, msg *flow.Message, topic string) error {
	partitioning := iggcon.PartitioningNone
	if msg.Key != nil {
		partitioning = iggcon.PartitioningMessageKey
	}

	err := p.client.SendMessages(iggcon.SendMessagesRequest{
		StreamId:     ige.NewIdentifier(p.cfg.StreamID),
		TopicId:      ige.NewIdentifier(p.cfg.TopicID),
		Partitioning: iggcon.Partitioning{Kind: partitioning},
		Messages:     []iggcon.Message{{Payload: msg.Payload}},
	})
	if err != nil {
		return apperr.Transient("iggy: publish failed", err)
	}
	return nil
}

// Flush is a no-op: SendMessages is synchronous per call in this adapter.
func (p *Publisher) Flush(ctx context.Context) error { return nil }

func (p *Publisher) Close() error { return nil }
