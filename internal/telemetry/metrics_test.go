package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"Jan Jansen", QueryTypeName},
		{"geboren in 1887", QueryTypeDate},
		{"Jan Jansen geboren 1887", QueryTypeMixed},
		{"huwelijk kinderen", QueryTypeGeneral},
		{"", QueryTypeGeneral},
		{"wie woonde in 2010", QueryTypeDate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.query), tt.query)
	}
}

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketUnder10ms, LatencyToBucket(3*time.Millisecond))
	assert.Equal(t, BucketUnder50ms, LatencyToBucket(20*time.Millisecond))
	assert.Equal(t, BucketUnder100ms, LatencyToBucket(80*time.Millisecond))
	assert.Equal(t, BucketUnder500ms, LatencyToBucket(250*time.Millisecond))
	assert.Equal(t, BucketSlow, LatencyToBucket(2*time.Second))
}

func TestMetrics_RecordAndSnapshot(t *testing.T) {
	m := NewMetrics()

	m.Record(QueryEvent{Query: "Jan Jansen", ResultCount: 5, Latency: 8 * time.Millisecond})
	m.Record(QueryEvent{Query: "geboren 1887", ResultCount: 0, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "Maria de Vries", ResultCount: 2, Degraded: 1, Latency: 600 * time.Millisecond})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(1), snap.TypeCounts[QueryTypeName])
	assert.Equal(t, int64(1), snap.TypeCounts[QueryTypeDate])
	assert.Equal(t, int64(1), snap.Buckets[BucketUnder10ms])
	assert.Equal(t, int64(1), snap.Buckets[BucketSlow])
	assert.Equal(t, int64(1), snap.Degraded)

	assert.Len(t, snap.ZeroResults, 1)
	assert.Equal(t, "geboren 1887", snap.ZeroResults[0].Query)
	assert.InDelta(t, 1.0/3.0, snap.ZeroResultRate(), 1e-9)
}

func TestMetrics_ZeroResultDedupeAndCap(t *testing.T) {
	m := NewMetrics()

	// The same zero-result query recorded twice occupies one slot.
	m.Record(QueryEvent{Query: "Onbekende Naam", ResultCount: 0})
	m.Record(QueryEvent{Query: "onbekende naam  ", ResultCount: 0})
	assert.Len(t, m.Snapshot().ZeroResults, 1)

	for i := 0; i < DefaultZeroResultCapacity*2; i++ {
		m.Record(QueryEvent{Query: fmt.Sprintf("query %d", i), ResultCount: 0})
	}
	assert.LessOrEqual(t, len(m.Snapshot().ZeroResults), DefaultZeroResultCapacity)
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.Record(QueryEvent{Query: "Jan", ResultCount: 0})
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.ZeroResults)
	assert.Empty(t, snap.TypeCounts)
}
