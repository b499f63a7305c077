package syncutil_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flowbridge/flowbridge/internal/syncutil"
)

type WorkerGroupSuite struct {
	suite.Suite
}

func TestWorkerGroupSuite(t *testing.T) {
	suite.Run(t, new(WorkerGroupSuite))
}

func (s *WorkerGroupSuite) TestGoRunsNWorkersConcurrently() {
	var g syncutil.WorkerGroup
	var count atomic.Int32

	g.Go(4, func(i int) {
		count.Add(1)
	})
	g.Wait()

	s.Equal(int32(4), count.Load())
}

func (s *WorkerGroupSuite) TestWaitBlocksUntilAllWorkersReturn() {
	var g syncutil.WorkerGroup
	release := make(chan struct{})
	var finished atomic.Int32

	g.Go(3, func(i int) {
		<-release
		finished.Add(1)
	})

	waitDone := make(chan struct{})
	go func() {
		g.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		s.Fail("Wait returned before workers were released")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		s.Fail("Wait did not return after workers finished")
	}
	s.Equal(int32(3), finished.Load())
}
