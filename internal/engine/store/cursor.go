package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// CursorStart is the position before every id.
const CursorStart int64 = -1

// SongsStream is the cursor key of the songs rollup pass.
const SongsStream = "songs"

// ErrInvalidBatchSize is returned for a batch size below 1.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// SongURLsStream returns the cursor key of the enrichment pass over one platform.
func SongURLsStream(s engine.Service) string {
	return "songurls:" + s.String()
}

// CursorBackend persists the last seen id per stream.
type CursorBackend interface {
	Load(ctx context.Context, stream string) (lastSeen int64, ok bool, err error)
	Save(ctx context.Context, stream string, lastSeen int64) error
}

// Cursors pages through tables in ascending id order, remembering per stream
// the largest id handed out. Each stream must have a single consumer; two
// goroutines calling Next* on the same stream may receive the same rows.
type Cursors struct {
	db Backend
	cb CursorBackend
}

// NewCursors creates a cursor store over db. A nil cb keeps positions in memory.
func NewCursors(db Backend, cb CursorBackend) *Cursors {
	if cb == nil {
		cb = NewMemoryCursors()
	}
	return &Cursors{db: db, cb: cb}
}

// NextSongURLs returns up to size rows matching f with ids above the stream's
// position and advances the position to the last of them. An empty result
// leaves the position unchanged.
func (c *Cursors) NextSongURLs(ctx context.Context, stream string, f Filter, size int) ([]SongURL, error) {
	return next(ctx, c, stream, size,
		func(after int64) ([]SongURL, error) { return c.db.SelectSongURLs(ctx, f, after, size) },
		func(u SongURL) int64 { return u.ID })
}

// NextSongs is NextSongURLs for the songs table.
func (c *Cursors) NextSongs(ctx context.Context, stream string, f Filter, size int) ([]Song, error) {
	return next(ctx, c, stream, size,
		func(after int64) ([]Song, error) { return c.db.SelectSongs(ctx, f, after, size) },
		func(s Song) int64 { return s.ID })
}

// Reset moves the stream back before every id.
func (c *Cursors) Reset(ctx context.Context, stream string) error {
	if err := c.cb.Save(ctx, stream, CursorStart); err != nil {
		return fmt.Errorf("reset cursor %s: %w", stream, err)
	}
	return nil
}

// Position returns the last id handed out on stream, or CursorStart.
func (c *Cursors) Position(ctx context.Context, stream string) (int64, error) {
	pos, ok, err := c.cb.Load(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("load cursor %s: %w", stream, err)
	}
	if !ok {
		return CursorStart, nil
	}
	return pos, nil
}

func next[T any](
	ctx context.Context,
	c *Cursors,
	stream string,
	size int,
	sel func(after int64) ([]T, error),
	id func(T) int64,
) ([]T, error) {
	if size < 1 {
		return nil, ErrInvalidBatchSize
	}
	after, err := c.Position(ctx, stream)
	if err != nil {
		return nil, err
	}
	rows, err := sel(after)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	last := after
	for _, r := range rows {
		last = max(last, id(r))
	}
	if err := c.cb.Save(ctx, stream, last); err != nil {
		return nil, fmt.Errorf("save cursor %s: %w", stream, err)
	}
	return rows, nil
}

// MemoryCursors keeps positions in process memory; they are lost on restart.
type MemoryCursors struct {
	mu  sync.Mutex
	pos map[string]int64
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{pos: make(map[string]int64)}
}

func (m *MemoryCursors) Load(_ context.Context, stream string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pos[stream]
	return v, ok, nil
}

func (m *MemoryCursors) Save(_ context.Context, stream string, lastSeen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[stream] = lastSeen
	return nil
}
