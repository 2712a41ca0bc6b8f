package store

import (
	"context"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresBackend stores the catalog in PostgreSQL through a pgx pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
	d    dialect
}

// OpenPostgres creates a pgx pool and runs schema migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// Closing db leaves the pool open.
	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, "postgres", "migrations/postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("postgres store connected", slog.String("addr", config.ConnConfig.Host))
	return &PostgresBackend{pool: pool, d: postgresDialect}, nil
}

func (b *PostgresBackend) SelectSongURLs(ctx context.Context, f Filter, afterID int64, limit int) ([]SongURL, error) {
	out, err := collect[SongURL](ctx, b.pool, b.d.selectSongURLs(f, afterID, limit))
	if err != nil {
		return nil, fmt.Errorf("select songurls: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) SelectSongs(ctx context.Context, f Filter, afterID int64, limit int) ([]Song, error) {
	out, err := collect[Song](ctx, b.pool, b.d.selectSongs(f, afterID, limit))
	if err != nil {
		return nil, fmt.Errorf("select songs: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) SongURLsForSongs(ctx context.Context, songIDs []int64) ([]SongURL, error) {
	if len(songIDs) == 0 {
		return nil, nil
	}
	out, err := collect[SongURL](ctx, b.pool, b.d.songURLsForSongs(songIDs))
	if err != nil {
		return nil, fmt.Errorf("select songurls for songs: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) UpdateSongURLs(ctx context.Context, updates []SongURLUpdate) error {
	var qs []sq.Sqlizer
	for _, u := range updates {
		if q := b.d.updateSongURL(u); q != nil {
			qs = append(qs, *q)
		}
	}
	return b.execTx(ctx, "update songurls", qs)
}

func (b *PostgresBackend) UpdateSongViews(ctx context.Context, updates []SongViewsUpdate) error {
	qs := make([]sq.Sqlizer, 0, len(updates))
	for _, u := range updates {
		qs = append(qs, b.d.updateSongViews(u))
	}
	return b.execTx(ctx, "update song views", qs)
}

func (b *PostgresBackend) InsertSongs(ctx context.Context, songs []Song) error {
	var qs []sq.Sqlizer
	for _, c := range chunked(songs, insertChunk) {
		qs = append(qs, b.d.insertSongs(c))
	}
	return b.execTx(ctx, "insert songs", qs)
}

func (b *PostgresBackend) InsertSongURLs(ctx context.Context, urls []SongURL) error {
	var qs []sq.Sqlizer
	for _, c := range chunked(urls, insertChunk) {
		qs = append(qs, b.d.insertSongURLs(c))
	}
	return b.execTx(ctx, "insert songurls", qs)
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, q sq.Sqlizer) ([]T, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
}

func (b *PostgresBackend) execTx(ctx context.Context, op string, qs []sq.Sqlizer) error {
	if len(qs) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		for _, q := range qs {
			query, args, err := q.ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
