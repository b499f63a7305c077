// Package mock is the in-memory flow.Source/flow.Publisher pair used by
// the flow package's own tests and by operators dry-running a flow
// configuration without a live broker (spec.md §4.10, driver "mock").
package mock

import (
	"context"
	"sync"

	"github.com/flowbridge/flowbridge/flow"
)

// Source is a programmable in-memory flow.Source: Feed queues messages for
// Next to return in order, and after Close, once the queued messages are
// drained, any pending or future Next returns (nil, false, nil).
type Source struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*flow.Message
	closed    bool
	committed []*flow.Message
}

// NewSource returns a ready-to-use mock source; Connect/Subscribe are no-ops.
func NewSource() *Source {
	s := &Source{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Source) Connect(ctx context.Context) error            { return nil }
func (s *Source) Subscribe(ctx context.Context, topics []string) error { return nil }

// Feed enqueues msg for a future Next call.
func (s *Source) Feed(msg *flow.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, msg)
	s.cond.Broadcast()
}

// Next blocks until Feed delivers a message, Close is called, or ctx is
// canceled — the flow base's shutdown protocol cancels each consumer's
// context and waits for its consumer goroutine to exit before it ever
// calls Close, so Next must be cancellable on its own.
func (s *Source) Next(ctx context.Context) (*flow.Message, bool, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stop:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		if ctx.Err() != nil {
			return nil, false, nil
		}
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false, nil
	}

	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, true, nil
}

func (s *Source) Commit(ctx context.Context, msg *flow.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msg)
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

// Committed is a test helper returning every message Commit was called with.
func (s *Source) Committed() []*flow.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*flow.Message, len(s.committed))
	copy(out, s.committed)
	return out
}

// Published is one message recorded by Publisher.Publish, paired with the
// topic it was published to.
type Published struct {
	Topic string
	Msg   *flow.Message
}

// Publisher is an in-memory flow.Publisher that records every published
// message for test assertions.
type Publisher struct {
	mu        sync.Mutex
	published []Published
	flushes   int
	failNext  bool
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Connect(ctx context.Context) error { return nil }

// FailNext makes the next Publish call return an error, then resets.
func (p *Publisher) FailNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = true
}

func (p *Publisher) Publish(ctx context.Context, msg *flow.Message, topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errPublishFailed
	}
	p.published = append(p.published, Published{Topic: topic, Msg: msg})
	return nil
}

func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *Publisher) Close() error { return nil }

// Published is a test helper returning every message recorded by Publish.
func (p *Publisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// Flushes is a test helper returning how many times Flush was called.
func (p *Publisher) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}

var errPublishFailed = mockPublishError{}

type mockPublishError struct{}

func (mockPublishError) Error() string { return "mock: publish failed" }
