package engine

import (
	"net/http"
	"time"
)

// Defaults shared by fetchers and runners.
const (
	DefaultMaxConcurrent    = 10
	DefaultQuotaWait        = 60 * time.Second
	MaxYouTubeChunk         = 50
	DefaultBatchSize        = 50
	DefaultYouTubeBatchSize = 500
	DefaultFetchTimeout     = 30 * time.Second
)

// Default upstream endpoints.
const (
	BilibiliAPIURL = "https://api.bilibili.com/x/web-interface/view"
	NicoNicoAPIURL = "https://ext.nicovideo.jp/api/getthumbinfo"
	YouTubeAPIURL  = "https://www.googleapis.com/youtube/v3/videos"
	VocaDBAPIURL   = "https://vocadb.net/api/songs"
)

// Config holds all runtime configuration, injected from main.
type Config struct {
	DatabaseURL       string
	RedisURL          string // empty = process-local cursors
	YouTubeAPIKeys    []string
	MaxConcurrent     int
	QuotaWait         time.Duration
	QuotaMaxAttempts  int           // 0 = no attempt bound
	QuotaMaxElapsed   time.Duration // 0 = no wall-clock bound
	YouTubeChunkSize  int
	RequestsPerSecond float64 // 0 = no rate limit
	FetchTimeout      time.Duration
	BilibiliUserAgent string
	BrowserTLS        bool // Bilibili via a Chrome TLS fingerprint
	BilibiliAPIURL    string
	NicoNicoAPIURL    string
	YouTubeAPIURL     string
	VocaDBAPIURL      string
	BatchSizeBilibili int
	BatchSizeNicoNico int
	BatchSizeYouTube  int
	ResetCursors      bool
	CatalogIngest     bool
	CatalogRollup     bool
	LogSQL            bool
	HTTPClient        *http.Client
}
