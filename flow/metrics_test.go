package flow

import (
	"testing"

	"github.com/flowbridge/flowbridge/internal/testsuite"
)

type MetricsSuite struct {
	testsuite.Suite
}

func TestMetricsSuite(t *testing.T) {
	testsuite.Run(t, new(MetricsSuite))
}

func (s *MetricsSuite) TestRecordSourceAccumulates() {
	r := NewMetricsRegistry()
	r.RecordSource("orders", 10)
	r.RecordSource("orders", 5)

	snap := r.GetMetrics()
	m := snap.SourceMetrics["orders"]
	s.Equal(int64(2), m.MessageCount)
	s.Equal(int64(15), m.TotalBytes)
	s.Equal(int64(0), m.ErrorCount)
	s.False(m.LastMessageTime.IsZero())
}

func (s *MetricsSuite) TestRecordSourceErrorIncrementsOnly() {
	r := NewMetricsRegistry()
	r.RecordSourceError("orders")

	snap := r.GetMetrics()
	m := snap.SourceMetrics["orders"]
	s.Equal(int64(0), m.MessageCount)
	s.Equal(int64(1), m.ErrorCount)
}

func (s *MetricsSuite) TestDestinationMetricsIndependentOfSource() {
	r := NewMetricsRegistry()
	r.RecordSource("orders", 10)
	r.RecordDestination("orders-out", 20)

	snap := r.GetMetrics()
	s.Equal(int64(1), snap.SourceMetrics["orders"].MessageCount)
	_, hasDestUnderSourceTopic := snap.SourceMetrics["orders-out"]
	s.False(hasDestUnderSourceTopic)
	s.Equal(int64(1), snap.DestinationMetrics["orders-out"].MessageCount)
}

func (s *MetricsSuite) TestSnapshotIsDeepCopy() {
	r := NewMetricsRegistry()
	r.RecordSource("orders", 10)

	snap := r.GetMetrics()
	r.RecordSource("orders", 10)

	s.Equal(int64(1), snap.SourceMetrics["orders"].MessageCount, "snapshot must not observe later writes")
}
