package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletin_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulletin_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Board metrics
var (
	BoardOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletin_board_operations_total",
		Help: "Total number of board operations by outcome (ok, error kind, or error)",
	}, []string{"op", "outcome"})

	BoardEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulletin_board_evicted_total",
		Help: "Total number of records evicted to stay within capacity",
	})

	BoardEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulletin_board_events_total",
		Help: "Total number of change notifications published",
	}, []string{"kind"})
)

// Event stream metrics
var (
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_stream_subscribers",
		Help: "Number of connected event stream subscribers",
	})

	StreamDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulletin_stream_dropped_total",
		Help: "Total number of subscribers disconnected for falling behind",
	})
)

// Ledger gauges (updated periodically by collector)
var (
	ActiveRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_active_records",
		Help: "Number of live records on the board",
	})

	Capacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_capacity",
		Help: "Configured ceiling on live records",
	})

	CapacityOverflow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_capacity_overflow",
		Help: "Live records above capacity left by reply-only eviction walks",
	})

	NextRecordID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_next_record_id",
		Help: "Next record id to be assigned",
	})

	LedgerStep = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bulletin_ledger_step",
		Help: "Number of committed write steps",
	})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 3 || segments[0] != "api" {
		return path
	}

	switch segments[1] {
	case "records":
		switch len(segments) {
		case 3:
			return "/api/records/:id"
		case 4:
			return "/api/records/:id/" + segments[3]
		}
	case "authors":
		if len(segments) == 4 {
			return "/api/authors/:identity/" + segments[3]
		}
	case "buckets":
		if len(segments) == 4 {
			return "/api/buckets/:bucket/" + segments[3]
		}
	case "handles":
		if len(segments) == 3 {
			return "/api/handles/:handle"
		}
	case "profiles":
		if len(segments) == 3 {
			return "/api/profiles/:identity"
		}
	case "admin":
		if len(segments) == 4 && segments[2] == "settings" {
			return "/api/admin/settings/:name"
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	// Split on /
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}

// GaugeValue reads the current value of a prometheus.Gauge.
func GaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

// CounterValue reads the current value of a prometheus.Counter.
func CounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}
