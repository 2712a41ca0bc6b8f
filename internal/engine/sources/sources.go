// Package sources fetches video statistics from the three platforms a VocaDB
// catalog links to and translates each wire format into engine.Result values.
//
//	bilibili.go: one JSON request per id, classified by the "code" field
//	youtube.go:  batched Data API v3 lookups with API key rotation
//	niconico.go: one XML request per id, classified by the status attribute
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// Parser turns a raw response body into an outcome and the stats it carries.
// Parsers never fail: malformed input is reported as engine.OutcomeUnknown.
type Parser func(body []byte) (engine.Outcome, engine.Stats)

// Fetcher looks up statistics for a set of platform ids.
// The result holds one entry per requested id in no particular order.
type Fetcher interface {
	Service() engine.Service
	FetchMany(ctx context.Context, ids []string) ([]engine.Result, error)
}

// Options configures the HTTP side of a fetcher.
type Options struct {
	HTTPClient        *http.Client
	BaseURL           string
	MaxConcurrent     int     // in-flight request bound, default 10
	RequestsPerSecond float64 // 0 = unlimited
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return engine.NewHTTPClient(engine.DefaultFetchTimeout)
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}

func (o Options) gate() *engine.Gate {
	return engine.NewGate(o.MaxConcurrent, o.RequestsPerSecond)
}

// StatusError reports an HTTP status outside a platform's known taxonomy.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func newStatusError(status int, body []byte) *StatusError {
	if len(body) > 512 {
		body = body[:512]
	}
	return &StatusError{Status: status, Body: string(body)}
}

// fetchEach issues one request per id under gate. A failed request yields an
// Unknown result for that id only; siblings are unaffected.
func fetchEach(
	ctx context.Context,
	service engine.Service,
	gate *engine.Gate,
	vids []string,
	get func(context.Context, string) ([]byte, error),
	parse Parser,
) ([]engine.Result, error) {
	return engine.FanOut(ctx, gate, vids, func(ctx context.Context, vid string) (engine.Result, error) {
		body, err := get(ctx, vid)
		if err != nil {
			slog.Debug("stats request failed",
				slog.String("service", service.String()),
				slog.String("id", vid),
				slog.Any("error", err))
			return engine.Result{ID: vid, Outcome: engine.OutcomeUnknown}, nil
		}
		outcome, stats := parse(body)
		if outcome == engine.OutcomeUnknown {
			slog.Debug("unrecognised stats response",
				slog.String("service", service.String()),
				slog.String("id", vid),
				slog.String("body", truncate(body, 256)))
		}
		return engine.Result{ID: vid, Outcome: outcome, Stats: stats}, nil
	})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
