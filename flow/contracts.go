package flow

import "context"

// Source is the abstract pull-style contract a broker adapter implements on
// the consuming side (spec.md §4.1). The infinite pull-style stream is
// exposed through Next, which blocks until the next message is available or
// the source is closed, at which point it returns (nil, false, nil).
type Source interface {
	// Connect establishes the underlying broker connection.
	Connect(ctx context.Context) error

	// Subscribe registers interest in the given topics, in order.
	Subscribe(ctx context.Context, topics []string) error

	// Next blocks for the next message. It returns (msg, true, nil) on
	// success, (nil, false, nil) once the source has been closed, and
	// (nil, false, err) on a consumer stream error (spec.md §7).
	Next(ctx context.Context) (*Message, bool, error)

	// Commit advances the delivery cursor up to and including msg. Exact
	// granularity (per-partition checkpoint, ack, or no-op) is
	// broker-specific.
	Commit(ctx context.Context, msg *Message) error

	// Close releases the underlying connection.
	Close() error
}

// Publisher is the abstract contract a broker adapter implements on the
// publishing side (spec.md §4.1).
type Publisher interface {
	// Connect establishes the underlying broker connection.
	Connect(ctx context.Context) error

	// Publish sends msg to topic.
	Publish(ctx context.Context, msg *Message, topic string) error

	// Flush blocks until all previously published messages are
	// acknowledged by the broker (or buffered writes are drained).
	Flush(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Transform processes a single message (spec.md §4.2). It must be safe to
// call concurrently from MaxWorkers goroutines; a transform that isn't
// thread-safe requires the operator to set MaxWorkers = 1.
type Transform interface {
	Process(ctx context.Context, msg *Message) (*Message, error)
}

// TransformFunc adapts a function to a Transform.
type TransformFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f TransformFunc) Process(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// IdentityTransform returns its input unchanged; it is the default transform.
var IdentityTransform Transform = TransformFunc(func(_ context.Context, msg *Message) (*Message, error) {
	return msg, nil
})

// AsyncSource mirrors Source for the cooperative single-threaded scheduler
// (spec.md §4.9). Its operations are suspension points rather than blocking
// calls, but in Go both are expressed as ordinary (possibly
// context-cancellable) methods — the distinction is enforced by contract,
// not by the type system: an AsyncSource implementation must never perform
// an OS-thread-blocking call itself. Its method set is identical to
// Source's, so every AsyncSource also satisfies Source at the type level;
// the async constructors in async.go take only AsyncSource/AsyncPublisher
// values, so one flow instance is built from one contract family.
type AsyncSource interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topics []string) error
	Next(ctx context.Context) (*Message, bool, error)
	Commit(ctx context.Context, msg *Message) error
	Close() error
}

// AsyncPublisher mirrors Publisher for the cooperative scheduler.
type AsyncPublisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, msg *Message, topic string) error
	Flush(ctx context.Context) error
	Close() error
}
