package syncutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flowbridge/flowbridge/internal/syncutil"
)

type RunnerSuite struct {
	suite.Suite
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) TestSafeGoRunsFn() {
	done := make(chan struct{})
	syncutil.SafeGo(context.Background(), func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("fn was never run")
	}
}

func (s *RunnerSuite) TestSafeGoRecoversPanicWithoutCrashingProcess() {
	done := make(chan struct{})
	syncutil.SafeGo(context.Background(), func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("panicking goroutine never completed its deferred cleanup")
	}
}
