package flow

import (
	"context"

	"github.com/flowbridge/flowbridge/internal/resilience"
)

// resilientPublisher wraps a Publisher with circuit breaker and retry
// protection around Publish. Connect/Flush/Close pass straight through —
// only the per-message send path is guarded, mirroring how a broken
// destination fails one message at a time rather than the whole flow.
type resilientPublisher struct {
	publisher Publisher
	cb        *resilience.CircuitBreaker
	retryCfg  resilience.RetryConfig
}

// WrapResilientPublisher wraps dest with retry/circuit-breaker protection
// per cfg. If neither is enabled, dest is returned unwrapped.
func WrapResilientPublisher(dest Publisher, cfg ResilienceConfig) Publisher {
	if !cfg.CircuitBreakerEnabled && !cfg.RetryEnabled {
		return dest
	}

	rp := &resilientPublisher{publisher: dest}

	if cfg.CircuitBreakerEnabled {
		rp.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "destination-publish",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		rp.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
		}
	}

	return rp
}

func (rp *resilientPublisher) Connect(ctx context.Context) error {
	return rp.publisher.Connect(ctx)
}

func (rp *resilientPublisher) Publish(ctx context.Context, msg *Message, topic string) error {
	return rp.execute(ctx, func(ctx context.Context) error {
		return rp.publisher.Publish(ctx, msg, topic)
	})
}

func (rp *resilientPublisher) Flush(ctx context.Context) error {
	return rp.publisher.Flush(ctx)
}

func (rp *resilientPublisher) Close() error {
	return rp.publisher.Close()
}

func (rp *resilientPublisher) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn

	if rp.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return rp.cb.Execute(ctx, cbFn)
		}
	}

	if rp.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, rp.retryCfg, operation)
	}

	return operation(ctx)
}
