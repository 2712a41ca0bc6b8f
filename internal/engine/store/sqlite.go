package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	sqldblogger "github.com/simukti/sqldb-logger"
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

// SQLiteBackend stores the catalog in a single SQLite file.
type SQLiteBackend struct {
	db *sqlx.DB
	d  dialect
}

// OpenSQLite opens (or creates) the database at dsn and migrates it.
// dsn may be a plain path or carry a sqlite://, sqlite: or file: prefix.
func OpenSQLite(ctx context.Context, dsn string, logSQL bool) (*SQLiteBackend, error) {
	path := sqlitePath(dsn)
	conn := sqliteDSN(path)

	raw, err := sql.Open(sqliteDriver, conn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if logSQL {
		raw = sqldblogger.OpenDriver(conn, raw.Driver(), sqlLogger{},
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug))
	}
	raw.SetMaxOpenConns(1) // SQLite: single writer

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, raw, "sqlite", "migrations/sqlite"); err != nil {
		raw.Close()
		return nil, err
	}

	slog.Info("sqlite store opened", slog.String("path", path), slog.Bool("log_sql", logSQL))
	return &SQLiteBackend{db: sqlx.NewDb(raw, "sqlite3"), d: sqliteDialect}, nil
}

func sqlitePath(dsn string) string {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(dsn, prefix) {
			dsn = strings.TrimPrefix(dsn, prefix)
			break
		}
	}
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}

func sqliteDSN(path string) string {
	values := url.Values{}
	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + values.Encode()
}

func (b *SQLiteBackend) SelectSongURLs(ctx context.Context, f Filter, afterID int64, limit int) ([]SongURL, error) {
	var out []SongURL
	if err := b.selectInto(ctx, &out, b.d.selectSongURLs(f, afterID, limit)); err != nil {
		return nil, fmt.Errorf("select songurls: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) SelectSongs(ctx context.Context, f Filter, afterID int64, limit int) ([]Song, error) {
	var out []Song
	if err := b.selectInto(ctx, &out, b.d.selectSongs(f, afterID, limit)); err != nil {
		return nil, fmt.Errorf("select songs: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) SongURLsForSongs(ctx context.Context, songIDs []int64) ([]SongURL, error) {
	if len(songIDs) == 0 {
		return nil, nil
	}
	var out []SongURL
	if err := b.selectInto(ctx, &out, b.d.songURLsForSongs(songIDs)); err != nil {
		return nil, fmt.Errorf("select songurls for songs: %w", err)
	}
	return out, nil
}

func (b *SQLiteBackend) UpdateSongURLs(ctx context.Context, updates []SongURLUpdate) error {
	var qs []sq.Sqlizer
	for _, u := range updates {
		if q := b.d.updateSongURL(u); q != nil {
			qs = append(qs, *q)
		}
	}
	return b.execTx(ctx, "update songurls", qs)
}

func (b *SQLiteBackend) UpdateSongViews(ctx context.Context, updates []SongViewsUpdate) error {
	qs := make([]sq.Sqlizer, 0, len(updates))
	for _, u := range updates {
		qs = append(qs, b.d.updateSongViews(u))
	}
	return b.execTx(ctx, "update song views", qs)
}

func (b *SQLiteBackend) InsertSongs(ctx context.Context, songs []Song) error {
	var qs []sq.Sqlizer
	for _, c := range chunked(songs, insertChunk) {
		qs = append(qs, b.d.insertSongs(c))
	}
	return b.execTx(ctx, "insert songs", qs)
}

func (b *SQLiteBackend) InsertSongURLs(ctx context.Context, urls []SongURL) error {
	var qs []sq.Sqlizer
	for _, c := range chunked(urls, insertChunk) {
		qs = append(qs, b.d.insertSongURLs(c))
	}
	return b.execTx(ctx, "insert songurls", qs)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) selectInto(ctx context.Context, dest any, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return b.db.SelectContext(ctx, dest, query, args...)
}

// execTx runs all statements in one transaction, rolling back on the first failure.
func (b *SQLiteBackend) execTx(ctx context.Context, op string, qs []sq.Sqlizer) error {
	if len(qs) == 0 {
		return nil
	}
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	for _, q := range qs {
		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("%s: build query: %w", op, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
