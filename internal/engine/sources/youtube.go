package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

var (
	// ErrChunkTooLarge is returned for a chunk size above the API's 50-id limit.
	ErrChunkTooLarge = fmt.Errorf("YouTube API only allows up to %d IDs per request", engine.MaxYouTubeChunk)
	// ErrQuotaExhausted is returned when the configured quota retry bound is reached.
	ErrQuotaExhausted = errors.New("youtube quota retry bound reached")

	errQuota = errors.New("youtube quota signal")
)

// --- YouTube Data API v3 types ---

type ytVideosResp struct {
	Items []ytVideoItem `json:"items"`
}

type ytVideoItem struct {
	ID         string `json:"id"`
	Statistics struct {
		ViewCount     *string `json:"viewCount"`
		LikeCount     *string `json:"likeCount"`
		DislikeCount  *string `json:"dislikeCount"`
		FavoriteCount *string `json:"favoriteCount"`
	} `json:"statistics"`
}

// ParseYouTube maps every item of a videos.list response to its stats.
// Counters the API hides (e.g. likes on some videos) stay nil.
func ParseYouTube(body []byte) (map[string]engine.Stats, error) {
	var resp ytVideosResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode youtube videos: %w", err)
	}
	out := make(map[string]engine.Stats, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID == "" {
			continue
		}
		st := item.Statistics
		out[item.ID] = engine.Stats{
			Views:     parseCount(st.ViewCount),
			Likes:     parseCount(st.LikeCount),
			Dislikes:  parseCount(st.DislikeCount),
			Favorites: parseCount(st.FavoriteCount),
		}
	}
	return out, nil
}

func parseCount(s *string) *int64 {
	if s == nil {
		return nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// YouTubeOptions configures a YouTubeFetcher.
type YouTubeOptions struct {
	Options
	Keys             []string
	ChunkSize        int           // ids per request, 1..50, default 50
	QuotaWait        time.Duration // pause after rotating keys, default 60s
	QuotaMaxAttempts int           // 0 = no attempt bound
	QuotaMaxElapsed  time.Duration // 0 = no wall-clock bound
	Part             string        // videos.list part, default "statistics"
}

// YouTubeFetcher looks up videos in chunks via the Data API v3.
// On 403/429 it rotates to the next API key, waits, and retries the same chunk.
type YouTubeFetcher struct {
	client      *http.Client
	baseURL     string
	part        string
	chunkSize   int
	quotaWait   time.Duration
	maxAttempts int
	maxElapsed  time.Duration
	keys        *KeyPool
	gate        *engine.Gate
}

// NewYouTubeFetcher validates o and creates a fetcher.
func NewYouTubeFetcher(o YouTubeOptions) (*YouTubeFetcher, error) {
	keys, err := NewKeyPool(o.Keys)
	if err != nil {
		return nil, err
	}
	chunk := o.ChunkSize
	if chunk == 0 {
		chunk = engine.MaxYouTubeChunk
	}
	if chunk > engine.MaxYouTubeChunk {
		return nil, ErrChunkTooLarge
	}
	if chunk < 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunk)
	}
	wait := o.QuotaWait
	if wait <= 0 {
		wait = engine.DefaultQuotaWait
	}
	part := o.Part
	if part == "" {
		part = "statistics"
	}
	return &YouTubeFetcher{
		client:      o.client(),
		baseURL:     o.baseURL(engine.YouTubeAPIURL),
		part:        part,
		chunkSize:   chunk,
		quotaWait:   wait,
		maxAttempts: max(o.QuotaMaxAttempts, 0),
		maxElapsed:  max(o.QuotaMaxElapsed, 0),
		keys:        keys,
		gate:        o.gate(),
	}, nil
}

func (f *YouTubeFetcher) Service() engine.Service { return engine.ServiceYouTube }

// Keys exposes the fetcher's key pool.
func (f *YouTubeFetcher) Keys() *KeyPool { return f.keys }

// FetchMany returns one result per id. Ids the API leaves out of its response
// are reported as OutcomeNotFound. A status outside 2xx/403/404/429 aborts the
// whole call with a *StatusError.
func (f *YouTubeFetcher) FetchMany(ctx context.Context, vids []string) ([]engine.Result, error) {
	chunks := chunkIDs(vids, f.chunkSize)
	perChunk, err := engine.FanOut(ctx, f.gate, chunks, f.fetchChunkResults)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Result, 0, len(vids))
	for _, rs := range perChunk {
		out = append(out, rs...)
	}
	return out, nil
}

func (f *YouTubeFetcher) fetchChunkResults(ctx context.Context, chunk []string) ([]engine.Result, error) {
	stats, err := f.fetchChunk(ctx, chunk)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) || errors.Is(err, ErrQuotaExhausted) || ctx.Err() != nil {
			return nil, err
		}
		slog.Debug("youtube chunk failed", slog.Int("ids", len(chunk)), slog.Any("error", err))
		out := make([]engine.Result, len(chunk))
		for i, id := range chunk {
			out[i] = engine.Result{ID: id, Outcome: engine.OutcomeUnknown}
		}
		return out, nil
	}

	out := make([]engine.Result, len(chunk))
	for i, id := range chunk {
		if st, ok := stats[id]; ok {
			out[i] = engine.Result{ID: id, Outcome: engine.OutcomeSuccess, Stats: st}
		} else {
			out[i] = engine.Result{ID: id, Outcome: engine.OutcomeNotFound}
		}
	}
	return out, nil
}

// fetchChunk requests one chunk, rotating keys on quota errors until it succeeds,
// a quota bound is hit, or ctx is done. Without bounds it retries forever.
func (f *YouTubeFetcher) fetchChunk(ctx context.Context, chunk []string) (map[string]engine.Stats, error) {
	operation := func() (map[string]engine.Stats, error) {
		key := f.keys.Current()
		body, status, err := engine.Get(ctx, f.client, f.chunkURL(chunk, key), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		switch {
		case status == http.StatusForbidden || status == http.StatusTooManyRequests:
			next := f.keys.Rotate()
			engine.IncrQuotaRotations()
			slog.Info("youtube quota exhausted, switching key",
				slog.Int("status", status),
				slog.String("key", maskKey(key)),
				slog.String("next", maskKey(next)),
				slog.Duration("wait", f.quotaWait))
			return nil, errQuota
		case status == http.StatusNotFound:
			return map[string]engine.Stats{}, nil
		case status < 200 || status > 299:
			return nil, backoff.Permanent(newStatusError(status, body))
		}

		stats, err := ParseYouTube(body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return stats, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(f.quotaWait)),
		backoff.WithMaxElapsedTime(f.maxElapsed),
	}
	if f.maxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(f.maxAttempts)))
	}

	stats, err := backoff.Retry(ctx, operation, opts...)
	if errors.Is(err, errQuota) {
		return nil, fmt.Errorf("%w: %d keys", ErrQuotaExhausted, f.keys.Len())
	}
	return stats, err
}

func (f *YouTubeFetcher) chunkURL(chunk []string, key string) string {
	params := url.Values{}
	params.Set("part", f.part)
	params.Set("id", strings.Join(chunk, ","))
	params.Set("key", key)
	return f.baseURL + "?" + params.Encode()
}

func chunkIDs(vids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(vids); i += size {
		end := min(i+size, len(vids))
		chunks = append(chunks, vids[i:end])
	}
	return chunks
}
