// Package store persists the song catalog and its video references, and keeps
// the batch cursors the enrichment passes page through them with.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Backend is the persistence surface used by cursors, runners and the catalog crawler.
// Bulk writes run in a single transaction.
type Backend interface {
	SelectSongURLs(ctx context.Context, f Filter, afterID int64, limit int) ([]SongURL, error)
	SelectSongs(ctx context.Context, f Filter, afterID int64, limit int) ([]Song, error)
	UpdateSongURLs(ctx context.Context, updates []SongURLUpdate) error
	UpdateSongViews(ctx context.Context, updates []SongViewsUpdate) error
	InsertSongs(ctx context.Context, songs []Song) error
	InsertSongURLs(ctx context.Context, urls []SongURL) error
	SongURLsForSongs(ctx context.Context, songIDs []int64) ([]SongURL, error)
	Close() error
}

// Open connects to dsn and applies pending migrations.
// postgres:// and postgresql:// URLs select PostgreSQL, anything else is a SQLite path.
func Open(ctx context.Context, dsn string, logSQL bool) (Backend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(ctx, dsn, logSQL)
}

// goose keeps its dialect, FS and logger in package globals.
var gooseMu sync.Mutex

func migrate(ctx context.Context, db *sql.DB, dialect, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}

// gooseLogger routes goose output to slog.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	slog.Debug("goose: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (gooseLogger) Fatalf(format string, v ...any) {
	slog.Error("goose: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

// sqlLogger routes sqldb-logger events to slog.
type sqlLogger struct{}

func (sqlLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	attrs := make([]slog.Attr, 0, len(data))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}
	lvl := slog.LevelDebug
	if level == sqldblogger.LevelError {
		lvl = slog.LevelError
	}
	slog.LogAttrs(ctx, lvl, "sql: "+msg, attrs...)
}
