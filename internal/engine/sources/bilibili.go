package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/ids"
)

// Bilibili response codes.
const (
	biliCodeOK = 0
)

var (
	biliNotFoundCodes = map[int]bool{-400: true, -404: true}
	biliDeletedCodes  = map[int]bool{62002: true, 62012: true, -403: true}
)

type biliResponse struct {
	Code *int            `json:"code"`
	Data json.RawMessage `json:"data"`
}

type biliData struct {
	Stat struct {
		View     int64 `json:"view"`
		Like     int64 `json:"like"`
		Dislike  int64 `json:"dislike"`
		Favorite int64 `json:"favorite"`
	} `json:"stat"`
}

// ParseBilibili classifies a web-interface/view response by its "code" field.
func ParseBilibili(body []byte) (engine.Outcome, engine.Stats) {
	var resp biliResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code == nil {
		return engine.OutcomeUnknown, engine.Stats{}
	}

	code := *resp.Code
	switch {
	case code == biliCodeOK:
		var data biliData
		if len(resp.Data) > 0 && string(resp.Data) != "null" {
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return engine.OutcomeUnknown, engine.Stats{}
			}
		}
		return engine.OutcomeSuccess, engine.Stats{
			Views:     engine.Int64(data.Stat.View),
			Likes:     engine.Int64(data.Stat.Like),
			Dislikes:  engine.Int64(data.Stat.Dislike),
			Favorites: engine.Int64(data.Stat.Favorite),
		}
	case biliNotFoundCodes[code]:
		return engine.OutcomeNotFound, engine.Stats{}
	case biliDeletedCodes[code]:
		return engine.OutcomeDeleted, engine.ZeroStats()
	}
	return engine.OutcomeUnknown, engine.Stats{}
}

// BrowserDoer sends a request with a browser TLS fingerprint.
// *engine.BrowserClient implements it.
type BrowserDoer interface {
	Do(method, url string, headers map[string]string, body io.Reader) ([]byte, int, error)
}

// BilibiliFetcher looks up videos one by one via the web-interface API.
// Ids may be in any form ids.Normalize understands.
type BilibiliFetcher struct {
	client    *http.Client
	browser   BrowserDoer
	baseURL   string
	userAgent string
	gate      *engine.Gate
}

// NewBilibiliFetcher creates a fetcher. An empty userAgent selects a random browser one;
// the API rejects obvious bot agents.
func NewBilibiliFetcher(o Options, userAgent string) *BilibiliFetcher {
	if userAgent == "" {
		userAgent = engine.RandomUserAgent()
	}
	return &BilibiliFetcher{
		client:    o.client(),
		baseURL:   o.baseURL(engine.BilibiliAPIURL),
		userAgent: userAgent,
		gate:      o.gate(),
	}
}

// WithBrowser routes requests through b instead of the plain HTTP client.
func (f *BilibiliFetcher) WithBrowser(b BrowserDoer) *BilibiliFetcher {
	f.browser = b
	return f
}

func (f *BilibiliFetcher) Service() engine.Service { return engine.ServiceBilibili }

// FetchMany returns one result per id. Per-id failures become OutcomeUnknown.
func (f *BilibiliFetcher) FetchMany(ctx context.Context, vids []string) ([]engine.Result, error) {
	return fetchEach(ctx, f.Service(), f.gate, vids, f.get, ParseBilibili)
}

func (f *BilibiliFetcher) videoURL(vid string) string {
	return f.baseURL + "?bvid=" + url.QueryEscape(ids.Normalize(vid))
}

func (f *BilibiliFetcher) get(ctx context.Context, vid string) ([]byte, error) {
	if f.browser != nil {
		return f.getBrowser(ctx, vid)
	}
	body, status, err := engine.Get(ctx, f.client, f.videoURL(vid), map[string]string{
		"User-Agent": f.userAgent,
		"Referer":    "https://www.bilibili.com/",
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, newStatusError(status, body)
	}
	return body, nil
}

func (f *BilibiliFetcher) getBrowser(ctx context.Context, vid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	headers := engine.ChromeHeaders()
	headers["user-agent"] = f.userAgent
	headers["referer"] = "https://www.bilibili.com/"

	engine.IncrRequests()
	body, status, err := f.browser.Do(http.MethodGet, f.videoURL(vid), headers, nil)
	if err != nil {
		engine.IncrRequestErrors()
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, newStatusError(status, body)
	}
	return body, nil
}
