// go_vocaviews: view-count enrichment for the VocaDB song catalog.
//
// Optionally mirrors the VocaDB catalog into the store, then runs one
// enrichment pass per platform (Bilibili, YouTube, NicoNico) and finally
// rolls the per-video statistics up onto each song.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/catalog"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/enrich"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/sources"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/store"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.Any("error", err))
	}
	initLogger(env.Str("LOG_LEVEL", "info"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	slog.Info("starting go_vocaviews", slog.String("version", version))

	err := run(ctx, cfg)
	slog.Info("metrics", slog.String("summary", engine.FormatMetrics()))
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig() engine.Config {
	c := engine.Config{
		DatabaseURL:       env.Str("DB_URL", ""),
		RedisURL:          env.Str("REDIS_URL", ""),
		YouTubeAPIKeys:    env.List("YOUTUBE_API_KEYS", ""),
		MaxConcurrent:     env.Int("MAX_CONCURRENT", engine.DefaultMaxConcurrent),
		QuotaWait:         env.Duration("QUOTA_WAIT", engine.DefaultQuotaWait),
		QuotaMaxAttempts:  env.Int("QUOTA_MAX_ATTEMPTS", 0),
		QuotaMaxElapsed:   env.Duration("QUOTA_MAX_ELAPSED", 0),
		YouTubeChunkSize:  env.Int("YOUTUBE_CHUNK_SIZE", engine.MaxYouTubeChunk),
		RequestsPerSecond: env.Float("REQUESTS_PER_SECOND", 0),
		FetchTimeout:      env.Duration("FETCH_TIMEOUT", engine.DefaultFetchTimeout),
		BilibiliUserAgent: env.Str("BILIBILI_USER_AGENT", ""),
		BrowserTLS:        envBool("BILIBILI_BROWSER_TLS", false),
		BilibiliAPIURL:    env.Str("BILIBILI_API_URL", engine.BilibiliAPIURL),
		NicoNicoAPIURL:    env.Str("NICONICO_API_URL", engine.NicoNicoAPIURL),
		YouTubeAPIURL:     env.Str("YOUTUBE_API_URL", engine.YouTubeAPIURL),
		VocaDBAPIURL:      env.Str("VOCADB_API_URL", engine.VocaDBAPIURL),
		BatchSizeBilibili: env.Int("BATCH_SIZE_BILIBILI", engine.DefaultBatchSize),
		BatchSizeNicoNico: env.Int("BATCH_SIZE_NICONICO", engine.DefaultBatchSize),
		BatchSizeYouTube:  env.Int("BATCH_SIZE_YOUTUBE", engine.DefaultYouTubeBatchSize),
		ResetCursors:      envBool("RESET_CURSORS", false),
		CatalogIngest:     envBool("CATALOG_INGEST", false),
		CatalogRollup:     envBool("CATALOG_ROLLUP", false),
		LogSQL:            envBool("LOG_SQL", false),
	}
	c.HTTPClient = engine.NewHTTPClient(c.FetchTimeout)
	return c
}

func run(ctx context.Context, c engine.Config) error {
	db, err := store.Open(ctx, c.DatabaseURL, c.LogSQL)
	if err != nil {
		return err
	}
	defer db.Close()

	cb := openCursorBackend(ctx, c.RedisURL)
	if closer, ok := cb.(io.Closer); ok {
		defer closer.Close()
	}
	cursors := store.NewCursors(db, cb)

	if c.CatalogIngest {
		crawler := catalog.NewCrawler(db, catalog.CrawlerOptions{
			HTTPClient:    c.HTTPClient,
			BaseURL:       c.VocaDBAPIURL,
			MaxConcurrent: c.MaxConcurrent,
		})
		if _, err := crawler.Run(ctx); err != nil {
			return err
		}
	}

	runners, err := buildRunners(c, db, cursors)
	if err != nil {
		return err
	}
	reports, runErr := enrich.RunAll(ctx, runners...)
	for _, rep := range reports {
		slog.Info("enrich: report",
			slog.String("service", rep.Service),
			slog.String("run_id", rep.RunID),
			slog.Int("batches", rep.Batches),
			slog.Int("rows", rep.Rows),
			slog.Int("success", rep.Success),
			slog.Int("deleted", rep.Deleted),
			slog.Int("not_found", rep.NotFound),
			slog.Int("unknown", rep.Unknown),
			slog.Duration("elapsed", rep.Elapsed))
	}
	if runErr != nil {
		return runErr
	}

	if c.CatalogRollup {
		n, err := catalog.NewRollup(db, cursors, 0, c.ResetCursors).Run(ctx)
		if err != nil {
			return err
		}
		slog.Info("catalog: rollup complete", slog.Int("songs", n))
	}
	return nil
}

// openCursorBackend returns Redis cursors when configured and reachable,
// nil (process-local cursors) otherwise.
func openCursorBackend(ctx context.Context, redisURL string) store.CursorBackend {
	if redisURL == "" {
		return nil
	}
	rc, err := store.NewRedisCursors(ctx, redisURL)
	if err != nil {
		slog.Warn("redis cursors unavailable, using memory", slog.Any("error", err))
		return nil
	}
	slog.Info("redis cursors connected")
	return rc
}

// buildRunners returns one runner per platform. Missing YouTube keys skip that
// pass; any other YouTube option error is a configuration error.
func buildRunners(c engine.Config, db store.Backend, cursors *store.Cursors) ([]*enrich.Runner, error) {
	base := func(baseURL string) sources.Options {
		return sources.Options{
			HTTPClient:        c.HTTPClient,
			BaseURL:           baseURL,
			MaxConcurrent:     c.MaxConcurrent,
			RequestsPerSecond: c.RequestsPerSecond,
		}
	}

	bili := sources.NewBilibiliFetcher(base(c.BilibiliAPIURL), c.BilibiliUserAgent)
	if c.BrowserTLS {
		bc, err := engine.NewBrowserClient(c.FetchTimeout)
		if err != nil {
			slog.Warn("browser client init failed, using plain http", slog.Any("error", err))
		} else {
			bili.WithBrowser(bc)
			slog.Info("bilibili browser client initialized")
		}
	}

	runners := []*enrich.Runner{
		enrich.NewRunner(bili, db, cursors,
			enrich.Options{BatchSize: c.BatchSizeBilibili, ResetCursor: c.ResetCursors}),
		enrich.NewRunner(sources.NewNicoNicoFetcher(base(c.NicoNicoAPIURL)), db, cursors,
			enrich.Options{BatchSize: c.BatchSizeNicoNico, ResetCursor: c.ResetCursors}),
	}

	yt, err := sources.NewYouTubeFetcher(sources.YouTubeOptions{
		Options:          base(c.YouTubeAPIURL),
		Keys:             c.YouTubeAPIKeys,
		ChunkSize:        c.YouTubeChunkSize,
		QuotaWait:        c.QuotaWait,
		QuotaMaxAttempts: c.QuotaMaxAttempts,
		QuotaMaxElapsed:  c.QuotaMaxElapsed,
	})
	if errors.Is(err, sources.ErrNoAPIKeys) {
		slog.Warn("youtube pass skipped", slog.Any("error", err))
		return runners, nil
	}
	if err != nil {
		return nil, fmt.Errorf("youtube fetcher: %w", err)
	}
	return append(runners, enrich.NewRunner(yt, db, cursors,
		enrich.Options{BatchSize: c.BatchSizeYouTube, ResetCursor: c.ResetCursors})), nil
}

func initLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(env.Str(key, ""))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env var, using default", slog.String("key", key), slog.String("value", v))
		return def
	}
	return b
}
