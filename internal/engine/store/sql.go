package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// insertChunk bounds the rows per multi-row INSERT.
const insertChunk = 200

var songURLColumns = []string{
	"id", "pv_id", "song_id", "url", "service",
	"views", "likes", "dislikes", "favorites",
	"status", "tombstoned", "published_at",
}

var songScalarColumns = []string{
	"id", "original_version_id", "name", "default_name", "default_name_language",
	"artist_string", "length_seconds", "pv_services", "min_milli_bpm", "max_milli_bpm",
	"song_type", "favorited_times", "rating_score", "create_date", "publish_date",
	"status", "version", "additional_names", "pv_count",
}

var songJSONColumns = []string{"pvs", "views", "artists", "tags"}

// dialect carries the SQL differences between sqlite and postgres.
type dialect struct {
	ph sq.PlaceholderFormat
	// jsonSelect renders a JSON column for SELECT so it scans as text.
	jsonSelect func(col string) string
}

var sqliteDialect = dialect{
	ph:         sq.Question,
	jsonSelect: func(col string) string { return col },
}

var postgresDialect = dialect{
	ph:         sq.Dollar,
	jsonSelect: func(col string) string { return col + "::text AS " + col },
}

func (d dialect) selectSongURLs(f Filter, afterID int64, limit int) sq.SelectBuilder {
	q := sq.Select(songURLColumns...).
		From("songurls").
		Where(sq.Gt{"id": afterID}).
		OrderBy("id").
		Limit(uint64(limit)).
		PlaceholderFormat(d.ph)
	if f.Service != "" {
		q = q.Where(sq.Eq{"service": f.Service})
	}
	if f.Unprocessed {
		q = q.Where(sq.Eq{"views": nil}).Where(sq.Eq{"status": nil}).Where(sq.Eq{"tombstoned": false})
	}
	return q
}

func (d dialect) songURLsForSongs(songIDs []int64) sq.SelectBuilder {
	return sq.Select(songURLColumns...).
		From("songurls").
		Where(sq.Eq{"song_id": songIDs}).
		OrderBy("id").
		PlaceholderFormat(d.ph)
}

func (d dialect) selectSongs(f Filter, afterID int64, limit int) sq.SelectBuilder {
	cols := append([]string(nil), songScalarColumns...)
	for _, c := range songJSONColumns {
		cols = append(cols, d.jsonSelect(c))
	}
	q := sq.Select(cols...).
		From("songs").
		Where(sq.Gt{"id": afterID}).
		OrderBy("id").
		Limit(uint64(limit)).
		PlaceholderFormat(d.ph)
	if f.SongsWithoutViews {
		q = q.Where(sq.Eq{"views": nil}).Where(sq.Gt{"pv_count": 0})
	}
	return q
}

// updateSongURL returns nil for outcomes that must not be written.
// Stats fields the platform did not report keep their stored value.
func (d dialect) updateSongURL(u SongURLUpdate) *sq.UpdateBuilder {
	if u.Outcome == engine.OutcomeUnknown {
		return nil
	}
	q := sq.Update("songurls").
		Set("status", u.Outcome.String()).
		Set("tombstoned", u.Outcome == engine.OutcomeNotFound).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": u.ID}).
		PlaceholderFormat(d.ph)
	if u.Outcome != engine.OutcomeNotFound {
		q = q.Set("views", sq.Expr("COALESCE(?, views)", u.Stats.Views)).
			Set("likes", sq.Expr("COALESCE(?, likes)", u.Stats.Likes)).
			Set("dislikes", sq.Expr("COALESCE(?, dislikes)", u.Stats.Dislikes)).
			Set("favorites", sq.Expr("COALESCE(?, favorites)", u.Stats.Favorites))
	}
	return &q
}

func (d dialect) updateSongViews(u SongViewsUpdate) sq.UpdateBuilder {
	return sq.Update("songs").
		Set("views", u.Views).
		Where(sq.Eq{"id": u.SongID}).
		PlaceholderFormat(d.ph)
}

func (d dialect) insertSongs(songs []Song) sq.InsertBuilder {
	cols := append(append([]string(nil), songScalarColumns...), songJSONColumns...)
	q := sq.Insert("songs").Columns(cols...).PlaceholderFormat(d.ph)
	for _, s := range songs {
		q = q.Values(
			s.ID, s.OriginalVersionID, s.Name, s.DefaultName, s.DefaultNameLanguage,
			s.ArtistString, s.LengthSeconds, s.PVServices, s.MinMilliBpm, s.MaxMilliBpm,
			s.SongType, s.FavoritedTimes, s.RatingScore, s.CreateDate, s.PublishDate,
			s.Status, s.Version, s.AdditionalNames, s.PVCount,
			s.PVs, s.Views, s.Artists, s.Tags,
		)
	}
	return q.Suffix("ON CONFLICT (id) DO NOTHING")
}

func (d dialect) insertSongURLs(urls []SongURL) sq.InsertBuilder {
	q := sq.Insert("songurls").
		Columns("pv_id", "song_id", "url", "service", "published_at").
		PlaceholderFormat(d.ph)
	for _, u := range urls {
		q = q.Values(u.PVID, u.SongID, u.URL, u.Service, u.PublishedAt)
	}
	return q.Suffix("ON CONFLICT (song_id, pv_id) DO NOTHING")
}

func chunked[T any](items []T, size int) [][]T {
	var out [][]T
	for i := 0; i < len(items); i += size {
		out = append(out, items[i:min(i+size, len(items))])
	}
	return out
}
