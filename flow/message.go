// Package flow implements the flow engine: the concurrent pipeline that
// moves messages from one or more Sources through a Transform stage to one
// or more Publishers, under one of three topologies (funnel, fan,
// one-to-one), with bounded queues, back-pressure, per-topic metrics, and
// graceful shutdown. See SPEC_FULL.md for the full design.
package flow

import "time"

// Message is an immutable-after-capture record carrying a payload between a
// Source and a Publisher. Transforms may mutate it before it is enqueued
// for publishing; after Publish returns, the engine discards it.
type Message struct {
	// ID uniquely identifies the message. Adapters that don't receive one
	// from the wire generate one (e.g. with uuid.NewString()).
	ID string

	// Payload is the message body.
	Payload []byte

	// Headers are case-sensitive key/value metadata. Iteration order is
	// never significant.
	Headers map[string]string

	// Topic is the topic/subject the message was received from. The flow
	// does not rewrite it: the destination topic travels beside the message
	// through Qd and Qp as queueItem.destTopic.
	Topic string

	// Key is the optional partitioning/ordering key.
	Key *string

	// Partition is the optional source partition number.
	Partition *int32

	// Offset is the optional source offset, broker-specific in shape
	// (Kafka uses an integer, others a string cursor), so it is carried
	// as an opaque string.
	Offset *string

	// Timestamp is when the message was produced, if known.
	Timestamp *time.Time
}

// Size returns the payload size plus the size of all header keys/values
// plus the key, matching spec.md §3's size() definition.
func (m *Message) Size() int {
	n := len(m.Payload)
	for k, v := range m.Headers {
		n += len(k) + len(v)
	}
	if m.Key != nil {
		n += len(*m.Key)
	}
	return n
}

// Clone returns a shallow copy safe for a transform to mutate without
// affecting the original (headers map is copied; payload slice is shared,
// matching the "may mutate and return it, or return a fresh Message"
// contract of spec.md §4.2 — transforms that rewrite Payload should
// allocate a new slice rather than mutate in place).
func (m *Message) Clone() *Message {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = v
	}
	clone := *m
	clone.Headers = headers
	return &clone
}
