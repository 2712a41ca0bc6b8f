package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/store"
)

// DefaultRollupBatch is the number of songs summarized per write.
const DefaultRollupBatch = 1000

// ViewEntry is the enriched view count of one PV of a song.
type ViewEntry struct {
	URL   string `json:"url"`
	Views *int64 `json:"views"`
}

// SongViews groups a song's PV view counts by service, in PV order.
type SongViews map[string][]ViewEntry

// Rollup writes a per-service views summary onto songs that have PVs but no
// summary yet. Run it after the enrichment passes.
type Rollup struct {
	db        store.Backend
	cursors   *store.Cursors
	batchSize int
	reset     bool
}

func NewRollup(db store.Backend, cursors *store.Cursors, batchSize int, reset bool) *Rollup {
	if batchSize <= 0 {
		batchSize = DefaultRollupBatch
	}
	return &Rollup{db: db, cursors: cursors, batchSize: batchSize, reset: reset}
}

// Run pages through the songs stream and returns how many songs were summarized.
func (r *Rollup) Run(ctx context.Context) (int, error) {
	if r.reset {
		if err := r.cursors.Reset(ctx, store.SongsStream); err != nil {
			return 0, err
		}
	}

	total := 0
	err := engine.TrackOperation(ctx, "catalog:rollup", func(ctx context.Context) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			songs, err := r.cursors.NextSongs(ctx, store.SongsStream, store.Filter{SongsWithoutViews: true}, r.batchSize)
			if err != nil {
				return fmt.Errorf("next songs: %w", err)
			}
			if len(songs) == 0 {
				return nil
			}
			updates, err := r.summarize(ctx, songs)
			if err != nil {
				return err
			}
			if err := r.db.UpdateSongViews(ctx, updates); err != nil {
				return fmt.Errorf("write views: %w", err)
			}
			total += len(updates)
			engine.AddSongsRolledUp(len(updates))
			slog.Info("catalog: rollup batch", slog.Int("songs", len(updates)), slog.Int("total", total))
		}
	})
	return total, err
}

func (r *Rollup) summarize(ctx context.Context, songs []store.Song) ([]store.SongViewsUpdate, error) {
	songIDs := make([]int64, len(songs))
	for i, s := range songs {
		songIDs[i] = s.ID
	}
	urls, err := r.db.SongURLsForSongs(ctx, songIDs)
	if err != nil {
		return nil, fmt.Errorf("load song urls: %w", err)
	}

	byURL := make(map[int64]map[string]store.SongURL, len(songs))
	for _, u := range urls {
		if byURL[u.SongID] == nil {
			byURL[u.SongID] = make(map[string]store.SongURL)
		}
		byURL[u.SongID][u.URL] = u
	}

	updates := make([]store.SongViewsUpdate, 0, len(songs))
	for _, s := range songs {
		views := BuildSongViews(s, byURL[s.ID])
		data, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("encode views of song %d: %w", s.ID, err)
		}
		updates = append(updates, store.SongViewsUpdate{SongID: s.ID, Views: data})
	}
	return updates, nil
}

// BuildSongViews walks the song's PVs in catalog order and collects the
// stored view count of each PV url known for the song.
func BuildSongViews(s store.Song, urls map[string]store.SongURL) SongViews {
	var pvs []apiPV
	if err := s.PVs.Decode(&pvs); err != nil {
		slog.Warn("catalog: bad pvs", slog.Int64("song_id", s.ID), slog.Any("error", err))
	}

	out := SongViews{}
	for _, pv := range pvs {
		u, ok := urls[pv.URL]
		if !ok {
			continue
		}
		out[u.Service] = append(out[u.Service], ViewEntry{URL: pv.URL, Views: u.Views})
	}
	return out
}
