// Package enrich drives one enrichment pass per platform: page through the
// unprocessed video references, fetch their statistics and write them back.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/ids"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/sources"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/store"
)

// State is the phase a Runner is in.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDispatching
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing"
	}
	return "idle"
}

// Options tunes a Runner. Zero values pick per-platform defaults.
type Options struct {
	BatchSize   int
	ResetCursor bool                       // start the pass from the first row
	ExtractID   func(rawURL string) string // catalog url -> platform id, "" if none
}

// Runner enriches the video references of one platform.
type Runner struct {
	fetcher   sources.Fetcher
	db        store.Backend
	cursors   *store.Cursors
	batchSize int
	reset     bool
	extract   func(string) string
	state     atomic.Int32
}

// NewRunner creates a runner for f's platform.
func NewRunner(f sources.Fetcher, db store.Backend, cursors *store.Cursors, o Options) *Runner {
	r := &Runner{
		fetcher:   f,
		db:        db,
		cursors:   cursors,
		batchSize: o.BatchSize,
		reset:     o.ResetCursor,
		extract:   o.ExtractID,
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize(f.Service())
	}
	if r.extract == nil {
		r.extract = DefaultExtractor(f.Service())
	}
	return r
}

// DefaultBatchSize is 500 for YouTube, which batches internally, and 50 otherwise.
func DefaultBatchSize(s engine.Service) int {
	if s == engine.ServiceYouTube {
		return engine.DefaultYouTubeBatchSize
	}
	return engine.DefaultBatchSize
}

// DefaultExtractor returns how catalog urls of s are turned into platform ids.
func DefaultExtractor(s engine.Service) func(string) string {
	switch s {
	case engine.ServiceBilibili:
		return ids.Normalize
	case engine.ServiceYouTube:
		return ids.ExtractYouTubeID
	case engine.ServiceNicoNico:
		return ids.ExtractNicoID
	}
	return func(raw string) string { return raw }
}

func (r *Runner) Service() engine.Service { return r.fetcher.Service() }

// Stream returns the cursor key this runner advances.
func (r *Runner) Stream() string { return store.SongURLsStream(r.Service()) }

// State returns the current phase. Safe to call from other goroutines.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) { r.state.Store(int32(s)) }

// Report summarizes one pass. Outcome counts are per row.
type Report struct {
	RunID    string
	Service  string
	Batches  int
	Rows     int
	Success  int
	Deleted  int
	NotFound int
	Unknown  int
	Elapsed  time.Duration
}

func (rep *Report) add(o engine.Outcome) {
	rep.Rows++
	switch o {
	case engine.OutcomeSuccess:
		rep.Success++
	case engine.OutcomeDeleted:
		rep.Deleted++
	case engine.OutcomeNotFound:
		rep.NotFound++
	default:
		rep.Unknown++
	}
	engine.RecordOutcome(o)
}

// Run processes batches until the stream is exhausted, ctx is done or the
// fetcher fails fatally. The report covers every batch written before the error.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Service: r.Service().String()}
	start := time.Now()
	defer r.setState(StateIdle)

	logger := slog.With(slog.String("service", rep.Service), slog.String("run_id", rep.RunID))

	if r.reset {
		if err := r.cursors.Reset(ctx, r.Stream()); err != nil {
			return rep, err
		}
	}

	logger.Info("enrich: pass started", slog.Int("batch_size", r.batchSize))
	err := engine.TrackOperation(ctx, "enrich:"+rep.Service, func(ctx context.Context) error {
		for {
			n, err := r.step(ctx, &rep)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			logger.Info("enrich: batch done",
				slog.Int("batch", rep.Batches),
				slog.Int("rows", n),
				slog.Int("success", rep.Success),
				slog.Int("deleted", rep.Deleted),
				slog.Int("not_found", rep.NotFound),
				slog.Int("unknown", rep.Unknown))
		}
	})
	rep.Elapsed = time.Since(start)
	if err != nil {
		logger.Error("enrich: pass halted", slog.Int("batches", rep.Batches), slog.Any("error", err))
		return rep, fmt.Errorf("enrich %s: %w", rep.Service, err)
	}

	logger.Info("enrich: pass complete",
		slog.Int("batches", rep.Batches),
		slog.Int("rows", rep.Rows),
		slog.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

// step runs one Fetching -> Dispatching -> Writing cycle and returns the batch size.
func (r *Runner) step(ctx context.Context, rep *Report) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.setState(StateFetching)
	filter := store.Filter{Service: r.Service().String(), Unprocessed: true}
	rows, err := r.cursors.NextSongURLs(ctx, r.Stream(), filter, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("next batch: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	r.setState(StateDispatching)
	updates, outcomes, err := r.dispatch(ctx, rows)
	if err != nil {
		return 0, err
	}

	r.setState(StateWriting)
	if err := r.db.UpdateSongURLs(ctx, updates); err != nil {
		return 0, fmt.Errorf("write batch: %w", err)
	}

	rep.Batches++
	engine.IncrBatches()
	for _, o := range outcomes {
		rep.add(o)
	}
	return len(rows), nil
}

// dispatch fetches every distinct platform id of rows once and maps the
// results back onto the rows. It returns the writes and one outcome per row.
func (r *Runner) dispatch(ctx context.Context, rows []store.SongURL) ([]store.SongURLUpdate, []engine.Outcome, error) {
	vidOf := make([]string, len(rows))
	var vids []string
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		vid := r.extract(row.URL)
		vidOf[i] = vid
		if vid == "" || seen[vid] {
			continue
		}
		seen[vid] = true
		vids = append(vids, vid)
	}

	byID := make(map[string]engine.Result, len(vids))
	if len(vids) > 0 {
		results, err := r.fetcher.FetchMany(ctx, vids)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch: %w", err)
		}
		for _, res := range results {
			byID[res.ID] = res
		}
	}

	updates := make([]store.SongURLUpdate, 0, len(rows))
	outcomes := make([]engine.Outcome, len(rows))
	for i, row := range rows {
		res, ok := byID[vidOf[i]]
		if !ok || res.Outcome == engine.OutcomeUnknown {
			outcomes[i] = engine.OutcomeUnknown
			continue
		}
		outcomes[i] = res.Outcome
		updates = append(updates, store.SongURLUpdate{ID: row.ID, Outcome: res.Outcome, Stats: res.Stats})
	}
	return updates, outcomes, nil
}
