package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flowbridge/flowbridge/internal/resilience"
)

type CircuitBreakerSuite struct {
	suite.Suite
}

func TestCircuitBreakerSuite(t *testing.T) {
	suite.Run(t, new(CircuitBreakerSuite))
}

func (s *CircuitBreakerSuite) TestOpensAfterFailureThreshold() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	boom := errors.New("boom")

	s.Error(cb.Execute(context.Background(), func(ctx context.Context) error { return boom }))
	s.Equal(resilience.StateClosed, cb.CurrentState())

	s.Error(cb.Execute(context.Background(), func(ctx context.Context) error { return boom }))
	s.Equal(resilience.StateOpen, cb.CurrentState())
}

func (s *CircuitBreakerSuite) TestOpenCircuitRejectsWithoutCallingFn() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	s.Require().Equal(resilience.StateOpen, cb.CurrentState())

	calls := 0
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	s.Error(err)
	s.Equal(0, calls)
}

func (s *CircuitBreakerSuite) TestHalfOpenAfterTimeoutThenClosesOnSuccesses() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})
	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	s.Require().Equal(resilience.StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)

	s.NoError(cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	s.Equal(resilience.StateHalfOpen, cb.CurrentState())

	s.NoError(cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	s.Equal(resilience.StateClosed, cb.CurrentState())
}

func (s *CircuitBreakerSuite) TestHalfOpenFailureReopens() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})
	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	s.Equal(resilience.StateOpen, cb.CurrentState())
}
