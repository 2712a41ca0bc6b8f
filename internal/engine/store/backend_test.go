package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

func openSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// backends runs fn against every Backend that needs no external server.
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryBackend()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
}

func seed(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	published := time.Date(2011, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.InsertSongs(ctx, []Song{
		{ID: 1, Name: "Melt", PVs: JSON(`[{"url":"https://youtu.be/aaaaaaaaaaa"}]`), PVCount: 1},
		{ID: 2, Name: "World is Mine", PVs: JSON(`[]`)},
		{ID: 3, Name: "Senbonzakura", PVs: JSON(`[{"url":"https://www.nicovideo.jp/watch/sm15630734"}]`), PVCount: 1},
	}))
	require.NoError(t, b.InsertSongURLs(ctx, []SongURL{
		{PVID: 10, SongID: 1, URL: "https://youtu.be/aaaaaaaaaaa", Service: "Youtube", PublishedAt: &published},
		{PVID: 11, SongID: 1, URL: "https://www.bilibili.com/video/av170001", Service: "Bilibili"},
		{PVID: 30, SongID: 3, URL: "https://www.nicovideo.jp/watch/sm15630734", Service: "NicoNicoDouga"},
		{PVID: 31, SongID: 3, URL: "https://youtu.be/bbbbbbbbbbb", Service: "Youtube"},
	}))
}

func TestBackendInsertAndSelect(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		seed(t, b)

		all, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID)
		}
		require.NotNil(t, all[0].PublishedAt)
		assert.True(t, all[0].PublishedAt.Equal(time.Date(2011, 5, 1, 12, 0, 0, 0, time.UTC)))

		yt, err := b.SelectSongURLs(ctx, Filter{Service: "Youtube", Unprocessed: true}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, yt, 2)
		assert.Equal(t, "https://youtu.be/aaaaaaaaaaa", yt[0].URL)

		after, err := b.SelectSongURLs(ctx, Filter{Service: "Youtube"}, yt[0].ID, 100)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, int64(31), after[0].PVID)

		limited, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestBackendInsertIsIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		seed(t, b)
		seed(t, b)

		songs, err := b.SelectSongs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)
		assert.Len(t, songs, 3)

		urls, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)
		assert.Len(t, urls, 4)
	})
}

func TestBackendUpdateSongURLs(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		seed(t, b)
		urls, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)

		require.NoError(t, b.UpdateSongURLs(ctx, []SongURLUpdate{
			{ID: urls[0].ID, Outcome: engine.OutcomeSuccess, Stats: engine.Stats{Views: engine.Int64(1200), Likes: engine.Int64(30)}},
			{ID: urls[1].ID, Outcome: engine.OutcomeDeleted, Stats: engine.ZeroStats()},
			{ID: urls[2].ID, Outcome: engine.OutcomeNotFound},
			{ID: urls[3].ID, Outcome: engine.OutcomeUnknown, Stats: engine.Stats{Views: engine.Int64(5)}},
		}))

		got, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, got, 4)

		assert.Equal(t, int64(1200), *got[0].Views)
		assert.Equal(t, int64(30), *got[0].Likes)
		assert.Nil(t, got[0].Dislikes, "unreported counters stay untouched")
		require.NotNil(t, got[0].Status)
		assert.Equal(t, "success", *got[0].Status)

		assert.Equal(t, int64(0), *got[1].Views)
		assert.Equal(t, "deleted", *got[1].Status)
		assert.False(t, got[1].Tombstoned)

		assert.True(t, got[2].Tombstoned)
		assert.Nil(t, got[2].Views)
		assert.Equal(t, "not_found", *got[2].Status)

		assert.Nil(t, got[3].Views, "unknown outcomes are not written")
		assert.Nil(t, got[3].Status)

		pending, err := b.SelectSongURLs(ctx, Filter{Unprocessed: true}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, urls[3].ID, pending[0].ID)
	})
}

func TestBackendSuccessWithoutViewsIsProcessed(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		seed(t, b)
		urls, err := b.SelectSongURLs(ctx, Filter{}, CursorStart, 100)
		require.NoError(t, err)

		// videos.list hides viewCount on some videos; only likes come back.
		require.NoError(t, b.UpdateSongURLs(ctx, []SongURLUpdate{
			{ID: urls[0].ID, Outcome: engine.OutcomeSuccess, Stats: engine.Stats{Likes: engine.Int64(4)}},
		}))

		pending, err := b.SelectSongURLs(ctx, Filter{Unprocessed: true}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, pending, len(urls)-1)
		for _, u := range pending {
			assert.NotEqual(t, urls[0].ID, u.ID)
		}
	})
}

func TestBackendSongsAndViews(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		seed(t, b)

		pending, err := b.SelectSongs(ctx, Filter{SongsWithoutViews: true}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, int64(1), pending[0].ID)
		assert.Equal(t, int64(3), pending[1].ID)
		assert.JSONEq(t, `[{"url":"https://youtu.be/aaaaaaaaaaa"}]`, string(pending[0].PVs))

		require.NoError(t, b.UpdateSongViews(ctx, []SongViewsUpdate{
			{SongID: 1, Views: JSON(`{"Youtube":[{"url":"https://youtu.be/aaaaaaaaaaa","views":1}]}`)},
		}))

		pending, err = b.SelectSongs(ctx, Filter{SongsWithoutViews: true}, CursorStart, 100)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(3), pending[0].ID)

		urls, err := b.SongURLsForSongs(ctx, []int64{3})
		require.NoError(t, err)
		require.Len(t, urls, 2)
		assert.Equal(t, int64(3), urls[0].SongID)

		none, err := b.SongURLsForSongs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestBackendEmptyWrites(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		assert.NoError(t, b.InsertSongs(ctx, nil))
		assert.NoError(t, b.InsertSongURLs(ctx, nil))
		assert.NoError(t, b.UpdateSongURLs(ctx, nil))
		assert.NoError(t, b.UpdateSongViews(ctx, nil))
	})
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"catalog.db", "catalog.db"},
		{"sqlite://data/catalog.db", "data/catalog.db"},
		{"sqlite:catalog.db", "catalog.db"},
		{"file:/tmp/x.db?mode=rwc", "/tmp/x.db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlitePath(tt.in), tt.in)
	}
}

func TestJSONColumn(t *testing.T) {
	var j JSON
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(j))

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)

	v, err := JSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, j.Scan(42))
}
