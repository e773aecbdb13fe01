package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Exact routes (no normalization needed)
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/api/latest", "/api/latest"},
		{"/api/feed", "/api/feed"},
		{"/api/stats", "/api/stats"},
		{"/api/records", "/api/records"},
		{"/api/profile", "/api/profile"},
		{"/api/profile/avatar", "/api/profile/avatar"},

		// Records with IDs
		{"/api/records/42", "/api/records/:id"},
		{"/api/records/42/replies", "/api/records/:id/replies"},
		{"/api/records/42/original", "/api/records/:id/original"},

		// Listings keyed by identity, bucket or handle
		{"/api/authors/did:plc:abc/records", "/api/authors/:identity/records"},
		{"/api/buckets/7/records", "/api/buckets/:bucket/records"},
		{"/api/handles/alice", "/api/handles/:handle"},
		{"/api/profiles/did:plc:abc", "/api/profiles/:identity"},

		// Admin settings
		{"/api/admin/settings", "/api/admin/settings"},
		{"/api/admin/settings/capacity", "/api/admin/settings/:name"},
		{"/api/admin/stats", "/api/admin/stats"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func TestCollect(t *testing.T) {
	snapshot := func(active, capacity uint64) func() (BoardSnapshot, bool) {
		return func() (BoardSnapshot, bool) {
			return BoardSnapshot{ActiveTotal: active, Capacity: capacity, NextID: 40, Step: 55}, true
		}
	}

	collect(StatsSource{
		Board:       snapshot(12, 10),
		Subscribers: func() int { return 3 },
	})

	assert.Equal(t, 12.0, testutil.ToFloat64(ActiveRecords))
	assert.Equal(t, 10.0, testutil.ToFloat64(Capacity))
	assert.Equal(t, 2.0, testutil.ToFloat64(CapacityOverflow))
	assert.Equal(t, 40.0, testutil.ToFloat64(NextRecordID))
	assert.Equal(t, 55.0, testutil.ToFloat64(LedgerStep))
	assert.Equal(t, 3.0, testutil.ToFloat64(StreamSubscribers))

	t.Run("board read once per collection", func(t *testing.T) {
		calls := 0
		collect(StatsSource{
			Board: func() (BoardSnapshot, bool) {
				calls++
				return BoardSnapshot{ActiveTotal: 4, Capacity: 10}, true
			},
		})
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0.0, testutil.ToFloat64(CapacityOverflow))
		assert.Equal(t, 3.0, testutil.ToFloat64(StreamSubscribers), "nil source leaves gauge untouched")
	})

	t.Run("failed read keeps previous values", func(t *testing.T) {
		collect(StatsSource{Board: snapshot(12, 10)})
		collect(StatsSource{
			Board: func() (BoardSnapshot, bool) { return BoardSnapshot{}, false },
		})
		assert.Equal(t, 12.0, testutil.ToFloat64(ActiveRecords))
		assert.Equal(t, 2.0, testutil.ToFloat64(CapacityOverflow))
	})
}

func TestValueReaders(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge"})
	g.Set(7)
	assert.Equal(t, 7.0, GaugeValue(g))

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter"})
	c.Add(3)
	assert.Equal(t, 3.0, CounterValue(c))
	assert.Equal(t, testutil.ToFloat64(c), CounterValue(c))
}
