// Package catalog fills the store from the VocaDB songs API and rolls the
// enriched per-video statistics back up onto each song.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/store"
)

// DefaultPageSize is the largest page VocaDB serves.
const DefaultPageSize = 100

const (
	songFields  = "AdditionalNames,PVs,Artists,Bpm,Tags"
	maxPageBody = 32 * 1024 * 1024
)

// --- VocaDB API types ---

type songsPage struct {
	Items      []apiSong `json:"items"`
	TotalCount int       `json:"totalCount"`
}

type apiSong struct {
	ID                  int64      `json:"id"`
	OriginalVersionID   *int64     `json:"originalVersionId"`
	Name                string     `json:"name"`
	DefaultName         string     `json:"defaultName"`
	DefaultNameLanguage string     `json:"defaultNameLanguage"`
	ArtistString        string     `json:"artistString"`
	LengthSeconds       int64      `json:"lengthSeconds"`
	PVServices          string     `json:"pvServices"`
	MinMilliBpm         *int64     `json:"minMilliBpm"`
	MaxMilliBpm         *int64     `json:"maxMilliBpm"`
	SongType            string     `json:"songType"`
	FavoritedTimes      int64      `json:"favoritedTimes"`
	RatingScore         int64      `json:"ratingScore"`
	CreateDate          string     `json:"createDate"`
	PublishDate         string     `json:"publishDate"`
	Status              string     `json:"status"`
	Version             int64      `json:"version"`
	AdditionalNames     string     `json:"additionalNames"`
	PVs                 store.JSON `json:"pvs"`
	Artists             store.JSON `json:"artists"`
	Tags                store.JSON `json:"tags"`
}

type apiPV struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Service     string `json:"service"`
	PublishDate string `json:"publishDate"`
}

// CrawlerOptions configures a Crawler.
type CrawlerOptions struct {
	HTTPClient    *http.Client
	BaseURL       string
	MaxConcurrent int // pages in flight, default 10
	PageSize      int // default 100
}

// Crawler copies the VocaDB song catalog and its PV links into the store.
type Crawler struct {
	client   *http.Client
	baseURL  string
	db       store.Backend
	gate     *engine.Gate
	pageSize int
	retry    stealth.RetryConfig
}

func NewCrawler(db store.Backend, o CrawlerOptions) *Crawler {
	c := &Crawler{
		client:   o.HTTPClient,
		baseURL:  o.BaseURL,
		db:       db,
		gate:     engine.NewGate(o.MaxConcurrent, 0),
		pageSize: o.PageSize,
		retry:    engine.DefaultRetryConfig,
	}
	if c.client == nil {
		c.client = engine.NewHTTPClient(engine.DefaultFetchTimeout)
	}
	if c.baseURL == "" {
		c.baseURL = engine.VocaDBAPIURL
	}
	if c.pageSize <= 0 || c.pageSize > DefaultPageSize {
		c.pageSize = DefaultPageSize
	}
	return c
}

// CrawlSummary counts what one crawl stored.
type CrawlSummary struct {
	TotalCount  int
	Pages       int
	FailedPages int
	Songs       int
	URLs        int
}

type pageResult struct {
	songs, urls int
	failed      bool
}

// Run reads the total count from the first page, then fetches the remaining
// pages concurrently. Failed pages are logged and skipped; only a failure of
// the first page aborts the crawl.
func (c *Crawler) Run(ctx context.Context) (CrawlSummary, error) {
	first, err := c.fetchPage(ctx, 0)
	if err != nil {
		return CrawlSummary{}, fmt.Errorf("vocadb first page: %w", err)
	}

	sum := CrawlSummary{TotalCount: first.TotalCount, Pages: 1}
	songs, urls, err := c.storePage(ctx, first.Items)
	if err != nil {
		return sum, fmt.Errorf("store first page: %w", err)
	}
	sum.Songs, sum.URLs = songs, urls

	var starts []int
	for start := c.pageSize; start < first.TotalCount; start += c.pageSize {
		starts = append(starts, start)
	}
	slog.Info("catalog: crawl started",
		slog.Int("total", first.TotalCount),
		slog.Int("pages", len(starts)+1),
		slog.Int("concurrency", c.gate.Size()))

	results, err := engine.FanOut(ctx, c.gate, starts, func(ctx context.Context, start int) (pageResult, error) {
		return c.processPage(ctx, start), nil
	})
	if err != nil {
		return sum, err
	}
	for _, r := range results {
		sum.Pages++
		if r.failed {
			sum.FailedPages++
		}
		sum.Songs += r.songs
		sum.URLs += r.urls
	}

	slog.Info("catalog: crawl complete",
		slog.Int("pages", sum.Pages),
		slog.Int("failed_pages", sum.FailedPages),
		slog.Int("songs", sum.Songs),
		slog.Int("urls", sum.URLs))
	return sum, nil
}

func (c *Crawler) processPage(ctx context.Context, start int) pageResult {
	page, err := c.fetchPage(ctx, start)
	if err != nil {
		slog.Error("catalog: page fetch failed", slog.Int("start", start), slog.Any("error", err))
		return pageResult{failed: true}
	}
	songs, urls, err := c.storePage(ctx, page.Items)
	if err != nil {
		slog.Error("catalog: page store failed", slog.Int("start", start), slog.Any("error", err))
		return pageResult{failed: true}
	}
	return pageResult{songs: songs, urls: urls}
}

// storePage inserts the songs of a page, then their PV links.
func (c *Crawler) storePage(ctx context.Context, items []apiSong) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	songs := make([]store.Song, 0, len(items))
	var urls []store.SongURL
	for _, it := range items {
		s, pvs := toSong(it)
		songs = append(songs, s)
		urls = append(urls, pvs...)
	}

	if err := c.db.InsertSongs(ctx, songs); err != nil {
		return 0, 0, err
	}
	engine.AddSongsIngested(len(songs))
	if len(urls) > 0 {
		if err := c.db.InsertSongURLs(ctx, urls); err != nil {
			return len(songs), 0, err
		}
		engine.AddURLsIngested(len(urls))
	}
	return len(songs), len(urls), nil
}

func (c *Crawler) pageURL(start int) string {
	params := url.Values{}
	params.Set("childTags", "false")
	params.Set("unifyTypesAndTags", "false")
	params.Set("childVoicebanks", "false")
	params.Set("includeMembers", "true")
	params.Set("onlyWithPvs", "false")
	params.Set("start", strconv.Itoa(start))
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	params.Set("getTotalCount", "true")
	params.Set("sort", "None")
	params.Set("preferAccurateMatches", "false")
	params.Set("fields", songFields)
	return c.baseURL + "?" + params.Encode()
}

func (c *Crawler) fetchPage(ctx context.Context, start int) (*songsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(start), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.UserAgentBot)
	req.Header.Set("Accept", "application/json")

	engine.IncrRequests()
	resp, err := engine.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		engine.IncrRequestErrors()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		engine.IncrRequestErrors()
		return nil, fmt.Errorf("vocadb returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var page songsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}

func toSong(it apiSong) (store.Song, []store.SongURL) {
	var pvs []apiPV
	if err := it.PVs.Decode(&pvs); err != nil {
		slog.Warn("catalog: bad pvs", slog.Int64("song_id", it.ID), slog.Any("error", err))
		pvs = nil
	}

	s := store.Song{
		ID:                  it.ID,
		OriginalVersionID:   it.OriginalVersionID,
		Name:                it.Name,
		DefaultName:         it.DefaultName,
		DefaultNameLanguage: it.DefaultNameLanguage,
		ArtistString:        it.ArtistString,
		LengthSeconds:       it.LengthSeconds,
		PVServices:          it.PVServices,
		MinMilliBpm:         it.MinMilliBpm,
		MaxMilliBpm:         it.MaxMilliBpm,
		SongType:            it.SongType,
		FavoritedTimes:      it.FavoritedTimes,
		RatingScore:         it.RatingScore,
		CreateDate:          parseDate(it.CreateDate),
		PublishDate:         parseDate(it.PublishDate),
		Status:              it.Status,
		Version:             it.Version,
		AdditionalNames:     it.AdditionalNames,
		PVs:                 it.PVs,
		PVCount:             len(pvs),
		Artists:             it.Artists,
		Tags:                it.Tags,
	}

	urls := make([]store.SongURL, 0, len(pvs))
	for _, pv := range pvs {
		urls = append(urls, store.SongURL{
			PVID:        pv.ID,
			SongID:      it.ID,
			URL:         pv.URL,
			Service:     pv.Service,
			PublishedAt: parseDate(pv.PublishDate),
		})
	}
	return s, urls
}

// VocaDB dates usually lack a zone; those are taken as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
