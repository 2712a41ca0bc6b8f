package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	Requests        atomic.Int64
	RequestErrors   atomic.Int64
	QuotaRotations  atomic.Int64
	Batches         atomic.Int64
	OutcomeSuccess  atomic.Int64
	OutcomeDeleted  atomic.Int64
	OutcomeNotFound atomic.Int64
	OutcomeUnknown  atomic.Int64
	SongsIngested   atomic.Int64
	URLsIngested    atomic.Int64
	SongsRolledUp   atomic.Int64
}

var metricKeys = []string{
	"requests", "request_errors", "quota_rotations", "batches",
	"outcome_success", "outcome_deleted", "outcome_not_found", "outcome_unknown",
	"songs_ingested", "urls_ingested", "songs_rolled_up",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"requests":          metrics.Requests.Load(),
		"request_errors":    metrics.RequestErrors.Load(),
		"quota_rotations":   metrics.QuotaRotations.Load(),
		"batches":           metrics.Batches.Load(),
		"outcome_success":   metrics.OutcomeSuccess.Load(),
		"outcome_deleted":   metrics.OutcomeDeleted.Load(),
		"outcome_not_found": metrics.OutcomeNotFound.Load(),
		"outcome_unknown":   metrics.OutcomeUnknown.Load(),
		"songs_ingested":    metrics.SongsIngested.Load(),
		"urls_ingested":     metrics.URLsIngested.Load(),
		"songs_rolled_up":   metrics.SongsRolledUp.Load(),
	}
}

// FormatMetrics returns metrics as "name value" lines.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrRequests()       { metrics.Requests.Add(1) }
func IncrRequestErrors()  { metrics.RequestErrors.Add(1) }
func IncrQuotaRotations() { metrics.QuotaRotations.Add(1) }
func IncrBatches()        { metrics.Batches.Add(1) }

func AddSongsIngested(n int) { metrics.SongsIngested.Add(int64(n)) }
func AddURLsIngested(n int)  { metrics.URLsIngested.Add(int64(n)) }
func AddSongsRolledUp(n int) { metrics.SongsRolledUp.Add(int64(n)) }

// RecordOutcome counts one row classified as o.
func RecordOutcome(o Outcome) {
	switch o {
	case OutcomeSuccess:
		metrics.OutcomeSuccess.Add(1)
	case OutcomeDeleted:
		metrics.OutcomeDeleted.Add(1)
	case OutcomeNotFound:
		metrics.OutcomeNotFound.Add(1)
	default:
		metrics.OutcomeUnknown.Add(1)
	}
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 30*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
