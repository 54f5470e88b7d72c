// Package telemetry collects local query metrics: what kinds of
// questions researchers ask, how fast retrieval answers them, and
// which queries come back empty. Everything stays on disk locally;
// nothing is reported anywhere.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType classifies a genealogical search query.
type QueryType string

const (
	// QueryTypeName targets a person (capitalized name tokens).
	QueryTypeName QueryType = "name"
	// QueryTypeDate targets a time period (contains a year).
	QueryTypeDate QueryType = "date"
	// QueryTypeMixed combines name and date.
	QueryTypeMixed QueryType = "mixed"
	// QueryTypeGeneral is everything else.
	QueryTypeGeneral QueryType = "general"
)

var yearPattern = regexp.MustCompile(`\b1[5-9]\d{2}\b|\b20\d{2}\b`)

// Classify derives the query type from surface features.
func Classify(query string) QueryType {
	hasYear := yearPattern.MatchString(query)
	hasName := false
	for _, tok := range strings.Fields(query) {
		r := []rune(tok)
		if len(r) >= 2 && r[0] >= 'A' && r[0] <= 'Z' {
			hasName = true
			break
		}
	}
	switch {
	case hasName && hasYear:
		return QueryTypeMixed
	case hasName:
		return QueryTypeName
	case hasYear:
		return QueryTypeDate
	default:
		return QueryTypeGeneral
	}
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder10ms  LatencyBucket = "<10ms"
	BucketUnder50ms  LatencyBucket = "<50ms"
	BucketUnder100ms LatencyBucket = "<100ms"
	BucketUnder500ms LatencyBucket = "<500ms"
	BucketSlow       LatencyBucket = ">=500ms"
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketUnder10ms
	case ms < 50:
		return BucketUnder50ms
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	default:
		return BucketSlow
	}
}

// QueryEvent is one recorded search query.
type QueryEvent struct {
	Query       string
	ResultCount int
	Degraded    int
	Latency     time.Duration
	Timestamp   time.Time
}

// DefaultZeroResultCapacity bounds the zero-result buffer.
const DefaultZeroResultCapacity = 128

// Metrics accumulates query telemetry in memory.
type Metrics struct {
	mu          sync.Mutex
	typeCounts  map[QueryType]int64
	buckets     map[LatencyBucket]int64
	degraded    int64
	total       int64
	zeroResults *lru.Cache[string, QueryEvent]
}

// NewMetrics creates an empty Metrics with the default zero-result
// capacity.
func NewMetrics() *Metrics {
	cache, _ := lru.New[string, QueryEvent](DefaultZeroResultCapacity)
	return &Metrics{
		typeCounts:  make(map[QueryType]int64),
		buckets:     make(map[LatencyBucket]int64),
		zeroResults: cache,
	}
}

// Record adds one query event.
func (m *Metrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.typeCounts[Classify(event.Query)]++
	m.buckets[LatencyToBucket(event.Latency)]++
	if event.Degraded > 0 {
		m.degraded++
	}
	if event.ResultCount == 0 {
		m.zeroResults.Add(hashQuery(event.Query), event)
	}
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	Total       int64
	TypeCounts  map[QueryType]int64
	Buckets     map[LatencyBucket]int64
	Degraded    int64
	ZeroResults []QueryEvent
}

// ZeroResultRate returns the fraction of distinct zero-result queries
// still in the buffer relative to total queries.
func (s *Snapshot) ZeroResultRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(len(s.ZeroResults)) / float64(s.Total)
}

// Snapshot copies the current metric state.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		Total:      m.total,
		TypeCounts: make(map[QueryType]int64, len(m.typeCounts)),
		Buckets:    make(map[LatencyBucket]int64, len(m.buckets)),
		Degraded:   m.degraded,
	}
	for k, v := range m.typeCounts {
		snap.TypeCounts[k] = v
	}
	for k, v := range m.buckets {
		snap.Buckets[k] = v
	}
	for _, key := range m.zeroResults.Keys() {
		if ev, ok := m.zeroResults.Get(key); ok {
			snap.ZeroResults = append(snap.ZeroResults, ev)
		}
	}
	return snap
}

// Reset clears all accumulated metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = 0
	m.degraded = 0
	m.typeCounts = make(map[QueryType]int64)
	m.buckets = make(map[LatencyBucket]int64)
	m.zeroResults.Purge()
}

// hashQuery dedupes zero-result queries without storing duplicates of
// the raw text as keys.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:8])
}
