package sources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

func TestParseBilibili(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    engine.Outcome
		wantNil bool
		views   int64
	}{
		{"success", `{"code":0,"data":{"stat":{"view":10,"like":2,"dislike":1,"favorite":3}}}`, engine.OutcomeSuccess, false, 10},
		{"success missing fields", `{"code":0,"data":{"stat":{"view":7}}}`, engine.OutcomeSuccess, false, 7},
		{"success without stat", `{"code":0,"data":{}}`, engine.OutcomeSuccess, false, 0},
		{"not found -404", `{"code":-404}`, engine.OutcomeNotFound, true, 0},
		{"not found -400", `{"code":-400,"message":"bad request"}`, engine.OutcomeNotFound, true, 0},
		{"deleted 62002", `{"code":62002}`, engine.OutcomeDeleted, false, 0},
		{"deleted 62012", `{"code":62012}`, engine.OutcomeDeleted, false, 0},
		{"deleted -403", `{"code":-403}`, engine.OutcomeDeleted, false, 0},
		{"other code", `{"code":-412}`, engine.OutcomeUnknown, true, 0},
		{"missing code", `{"data":{}}`, engine.OutcomeUnknown, true, 0},
		{"malformed", `<html>`, engine.OutcomeUnknown, true, 0},
		{"malformed data", `{"code":0,"data":"oops"}`, engine.OutcomeUnknown, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stats := ParseBilibili([]byte(tt.body))
			assert.Equal(t, tt.want, got)
			if tt.wantNil {
				assert.True(t, stats.Empty())
				return
			}
			require.NotNil(t, stats.Views)
			assert.Equal(t, tt.views, *stats.Views)
		})
	}
}

func TestParseBilibiliAllFields(t *testing.T) {
	outcome, stats := ParseBilibili([]byte(`{"code":0,"data":{"stat":{"view":10,"like":2,"dislike":1,"favorite":3}}}`))
	require.Equal(t, engine.OutcomeSuccess, outcome)
	assert.Equal(t, int64(10), *stats.Views)
	assert.Equal(t, int64(2), *stats.Likes)
	assert.Equal(t, int64(1), *stats.Dislikes)
	assert.Equal(t, int64(3), *stats.Favorites)

	outcome, stats = ParseBilibili([]byte(`{"code":62002}`))
	require.Equal(t, engine.OutcomeDeleted, outcome)
	assert.Equal(t, engine.ZeroStats(), stats)
}

func TestBilibiliFetcher(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Query().Get("bvid") {
		case "BV17x411w7KC":
			w.Write([]byte(`{"code":0,"data":{"stat":{"view":100,"like":5,"dislike":0,"favorite":9}}}`))
		case "BV1xx411c7mQ":
			w.Write([]byte(`{"code":62002}`))
		case "BV1GJ411x7h7":
			w.Write([]byte(`{"code":-404}`))
		case "BV1n44y1F76R":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	f := NewBilibiliFetcher(Options{HTTPClient: srv.Client(), BaseURL: srv.URL, MaxConcurrent: 2}, "test-agent")
	assert.Equal(t, engine.ServiceBilibili, f.Service())

	in := []string{
		"https://www.bilibili.com/video/av170001",
		"av1",
		"BV1GJ411x7h7",
		"av1000000000",
		"garbage",
	}
	results, err := f.FetchMany(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, results, len(in))
	assert.Equal(t, "test-agent", gotUA)

	byID := map[string]engine.Result{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Equal(t, engine.OutcomeSuccess, byID[in[0]].Outcome)
	assert.Equal(t, int64(100), *byID[in[0]].Stats.Views)
	assert.Equal(t, engine.OutcomeDeleted, byID["av1"].Outcome)
	assert.Equal(t, engine.OutcomeNotFound, byID["BV1GJ411x7h7"].Outcome)
	assert.Equal(t, engine.OutcomeUnknown, byID["av1000000000"].Outcome, "non-2xx maps to unknown")
	assert.Equal(t, engine.OutcomeUnknown, byID["garbage"].Outcome)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	want := append([]string(nil), in...)
	sort.Strings(want)
	assert.Equal(t, want, ids)
}

func TestBilibiliFetcherTransportFailureIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bvid") == "BV1xx411c7mQ" {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
				return
			}
		}
		w.Write([]byte(`{"code":0,"data":{"stat":{"view":1}}}`))
	}))
	defer srv.Close()

	f := NewBilibiliFetcher(Options{HTTPClient: srv.Client(), BaseURL: srv.URL}, "ua")
	results, err := f.FetchMany(context.Background(), []string{"av1", "av170001", "BV1GJ411x7h7"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		if r.ID == "av1" {
			assert.Equal(t, engine.OutcomeUnknown, r.Outcome)
		} else {
			assert.Equal(t, engine.OutcomeSuccess, r.Outcome, r.ID)
		}
	}
}

func TestNewBilibiliFetcherDefaultUserAgent(t *testing.T) {
	f := NewBilibiliFetcher(Options{}, "")
	assert.NotEmpty(t, f.userAgent)
	assert.Equal(t, engine.BilibiliAPIURL, f.baseURL)
	assert.Equal(t, engine.BilibiliAPIURL+"?bvid=BV17x411w7KC", f.videoURL("av170001"))
}

type fakeBrowser struct {
	urls    []string
	headers map[string]string
	status  int
	body    string
	err     error
}

func (b *fakeBrowser) Do(method, url string, headers map[string]string, _ io.Reader) ([]byte, int, error) {
	b.urls = append(b.urls, url)
	b.headers = headers
	if b.err != nil {
		return nil, 0, b.err
	}
	return []byte(b.body), b.status, nil
}

func TestBilibiliFetcherWithBrowser(t *testing.T) {
	b := &fakeBrowser{status: http.StatusOK, body: `{"code":0,"data":{"stat":{"view":42}}}`}
	f := NewBilibiliFetcher(Options{BaseURL: "https://bili.test/view", MaxConcurrent: 1}, "test-agent").WithBrowser(b)

	results, err := f.FetchMany(context.Background(), []string{"av170001"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, engine.OutcomeSuccess, results[0].Outcome)
	assert.Equal(t, int64(42), *results[0].Stats.Views)
	assert.Equal(t, []string{"https://bili.test/view?bvid=BV17x411w7KC"}, b.urls)
	assert.Equal(t, "test-agent", b.headers["user-agent"])
	assert.Equal(t, "https://www.bilibili.com/", b.headers["referer"])

	b.status, b.body = http.StatusPreconditionFailed, "blocked"
	results, err = f.FetchMany(context.Background(), []string{"BV17x411w7KC"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUnknown, results[0].Outcome)

	b.err = errors.New("tls handshake")
	results, err = f.FetchMany(context.Background(), []string{"BV17x411w7KC"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUnknown, results[0].Outcome)
}
