package flow

import (
	"context"
	"testing"
	"time"

	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type QueueSuite struct {
	testsuite.Suite
}

func TestQueueSuite(t *testing.T) {
	testsuite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) TestPutGetRoundTrip() {
	q := newBoundedQueue(2)
	msg := &Message{Topic: "t"}

	ok := q.put(s.Ctx, queueItem{msg: msg, destTopic: "d"})
	s.True(ok)
	s.Equal(1, q.qsize())

	item, ok := q.get(time.Second)
	s.True(ok)
	s.Equal(msg, item.msg)
	s.Equal(0, q.qsize())
}

func (s *QueueSuite) TestGetTimesOutOnEmptyQueue() {
	q := newBoundedQueue(1)
	_, ok := q.get(20 * time.Millisecond)
	s.False(ok)
}

func (s *QueueSuite) TestPutBlocksWhenFullUntilGetFreesRoom() {
	q := newBoundedQueue(1)
	s.True(q.put(s.Ctx, queueItem{msg: &Message{Topic: "a"}}))

	putDone := make(chan bool, 1)
	go func() {
		putDone <- q.put(s.Ctx, queueItem{msg: &Message{Topic: "b"}})
	}()

	select {
	case <-putDone:
		s.Fail("second put should have blocked while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.get(time.Second)
	s.True(ok)

	select {
	case ok := <-putDone:
		s.True(ok)
	case <-time.After(time.Second):
		s.Fail("put did not unblock after get freed capacity")
	}
}

func (s *QueueSuite) TestFillRatio() {
	q := newBoundedQueue(4)
	s.InDelta(0.0, q.fillRatio(), 0.0001)

	q.put(s.Ctx, queueItem{msg: &Message{}})
	q.put(s.Ctx, queueItem{msg: &Message{}})
	s.InDelta(0.5, q.fillRatio(), 0.0001)
}

func (s *QueueSuite) TestJoinWaitsForTaskDone() {
	q := newBoundedQueue(4)
	q.put(s.Ctx, queueItem{msg: &Message{}})

	joined := make(chan struct{})
	go func() {
		q.join()
		close(joined)
	}()

	select {
	case <-joined:
		s.Fail("join returned before taskDone was called")
	case <-time.After(30 * time.Millisecond):
	}

	item, ok := q.get(time.Second)
	s.Require().True(ok)
	q.taskDone()
	_ = item

	select {
	case <-joined:
	case <-time.After(time.Second):
		s.Fail("join did not return after taskDone")
	}
}

func (s *QueueSuite) TestCloseQueueUnblocksGetAndDrainsBuffered() {
	q := newBoundedQueue(4)
	q.put(s.Ctx, queueItem{msg: &Message{Topic: "still-here"}})
	q.closeQueue()

	item, ok := q.get(time.Second)
	s.True(ok, "closed queue should still yield buffered items")
	s.Equal("still-here", item.msg.Topic)

	_, ok = q.get(time.Second)
	s.False(ok, "closed and drained queue should report no more items")
}

func (s *QueueSuite) TestPutReturnsFalseOnClosedEmptyQueue() {
	q := newBoundedQueue(1)
	q.closeQueue()
	ok := q.put(context.Background(), queueItem{msg: &Message{}})
	s.False(ok)
}
