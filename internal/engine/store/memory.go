package store

import (
	"context"
	"slices"
	"sync"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// MemoryBackend keeps everything in process memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	songs   map[int64]Song
	urls    map[int64]SongURL
	nextURL int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		songs: make(map[int64]Song),
		urls:  make(map[int64]SongURL),
	}
}

func (m *MemoryBackend) SelectSongURLs(_ context.Context, f Filter, afterID int64, limit int) ([]SongURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SongURL
	for _, id := range sortedKeys(m.urls) {
		if len(out) >= limit {
			break
		}
		u := m.urls[id]
		if id <= afterID || (f.Service != "" && u.Service != f.Service) {
			continue
		}
		if f.Unprocessed && (u.Views != nil || u.Status != nil || u.Tombstoned) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *MemoryBackend) SelectSongs(_ context.Context, f Filter, afterID int64, limit int) ([]Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Song
	for _, id := range sortedKeys(m.songs) {
		if len(out) >= limit {
			break
		}
		s := m.songs[id]
		if id <= afterID {
			continue
		}
		if f.SongsWithoutViews && (s.Views != nil || s.PVCount == 0) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryBackend) SongURLsForSongs(_ context.Context, songIDs []int64) ([]SongURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SongURL
	for _, id := range sortedKeys(m.urls) {
		if u := m.urls[id]; slices.Contains(songIDs, u.SongID) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryBackend) UpdateSongURLs(_ context.Context, updates []SongURLUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, up := range updates {
		u, ok := m.urls[up.ID]
		if !ok || up.Outcome == engine.OutcomeUnknown {
			continue
		}
		status := up.Outcome.String()
		u.Status = &status
		u.Tombstoned = up.Outcome == engine.OutcomeNotFound
		if !u.Tombstoned {
			u.Views = coalesce(up.Stats.Views, u.Views)
			u.Likes = coalesce(up.Stats.Likes, u.Likes)
			u.Dislikes = coalesce(up.Stats.Dislikes, u.Dislikes)
			u.Favorites = coalesce(up.Stats.Favorites, u.Favorites)
		}
		m.urls[up.ID] = u
	}
	return nil
}

func (m *MemoryBackend) UpdateSongViews(_ context.Context, updates []SongViewsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, up := range updates {
		if s, ok := m.songs[up.SongID]; ok {
			s.Views = append(JSON(nil), up.Views...)
			m.songs[up.SongID] = s
		}
	}
	return nil
}

func (m *MemoryBackend) InsertSongs(_ context.Context, songs []Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range songs {
		if _, ok := m.songs[s.ID]; !ok {
			m.songs[s.ID] = s
		}
	}
	return nil
}

func (m *MemoryBackend) InsertSongURLs(_ context.Context, urls []SongURL) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range urls {
		if m.hasURL(u.SongID, u.PVID) {
			continue
		}
		m.nextURL++
		u.ID = m.nextURL
		m.urls[u.ID] = u
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// SongURL returns a stored row by id.
func (m *MemoryBackend) SongURL(id int64) (SongURL, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.urls[id]
	return u, ok
}

// Song returns a stored song by id.
func (m *MemoryBackend) Song(id int64) (Song, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.songs[id]
	return s, ok
}

func (m *MemoryBackend) hasURL(songID, pvID int64) bool {
	for _, u := range m.urls {
		if u.SongID == songID && u.PVID == pvID {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func coalesce(v, old *int64) *int64 {
	if v != nil {
		n := *v
		return &n
	}
	return old
}
