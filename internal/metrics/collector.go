package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// BoardSnapshot is one consistent read of the ledger scalars.
type BoardSnapshot struct {
	ActiveTotal uint64
	Capacity    uint64
	NextID      uint64
	Step        uint64
}

// StatsSource provides functions to retrieve current values for gauge metrics.
// A nil function leaves its gauges untouched, and so does a Board call that
// reports false.
type StatsSource struct {
	Board       func() (BoardSnapshot, bool)
	Subscribers func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.Board != nil {
		if snap, ok := src.Board(); ok {
			ActiveRecords.Set(float64(snap.ActiveTotal))
			Capacity.Set(float64(snap.Capacity))
			if snap.ActiveTotal > snap.Capacity {
				CapacityOverflow.Set(float64(snap.ActiveTotal - snap.Capacity))
			} else {
				CapacityOverflow.Set(0)
			}
			NextRecordID.Set(float64(snap.NextID))
			LedgerStep.Set(float64(snap.Step))
		}
	}
	if src.Subscribers != nil {
		StreamSubscribers.Set(float64(src.Subscribers()))
	}
}
