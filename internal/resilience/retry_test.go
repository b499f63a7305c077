package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flowbridge/flowbridge/internal/resilience"
)

type RetrySuite struct {
	suite.Suite
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetrySuite))
}

func (s *RetrySuite) TestSucceedsWithoutRetryWhenFnSucceeds() {
	calls := 0
	err := resilience.Retry(context.Background(), resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return nil
	})
	s.NoError(err)
	s.Equal(1, calls)
}

func (s *RetrySuite) TestRetriesUntilSuccess() {
	calls := 0
	cfg := resilience.RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	s.NoError(err)
	s.Equal(3, calls)
}

func (s *RetrySuite) TestReturnsLastErrorAfterExhaustingAttempts() {
	calls := 0
	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	boom := errors.New("boom")
	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(3, calls)
}

func (s *RetrySuite) TestRetryIfFalseStopsImmediately() {
	calls := 0
	permanent := errors.New("permanent")
	cfg := resilience.RetryConfig{
		MaxAttempts: 5,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return permanent
	})
	s.ErrorIs(err, permanent)
	s.Equal(1, calls)
}

func (s *RetrySuite) TestContextCancellationStopsRetryLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := resilience.Retry(ctx, resilience.RetryConfig{MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	s.Error(err)
	s.Equal(0, calls)
}
