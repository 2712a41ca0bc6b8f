package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/sources"
	"github.com/anatolykoptev/go_vocaviews/internal/engine/store"
)

func TestBuildRunners(t *testing.T) {
	db := store.NewMemoryBackend()
	cursors := store.NewCursors(db, nil)

	t.Run("all platforms", func(t *testing.T) {
		runners, err := buildRunners(engine.Config{YouTubeAPIKeys: []string{"k1"}, YouTubeChunkSize: 50}, db, cursors)
		require.NoError(t, err)
		require.Len(t, runners, 3)
		assert.Equal(t, engine.ServiceYouTube, runners[2].Service())
	})

	t.Run("no youtube keys skips youtube", func(t *testing.T) {
		runners, err := buildRunners(engine.Config{YouTubeChunkSize: 50}, db, cursors)
		require.NoError(t, err)
		require.Len(t, runners, 2)
		assert.Equal(t, engine.ServiceBilibili, runners[0].Service())
		assert.Equal(t, engine.ServiceNicoNico, runners[1].Service())
	})

	t.Run("oversized chunk fails", func(t *testing.T) {
		_, err := buildRunners(engine.Config{YouTubeAPIKeys: []string{"k1"}, YouTubeChunkSize: 51}, db, cursors)
		assert.ErrorIs(t, err, sources.ErrChunkTooLarge)
	})

	t.Run("negative chunk fails", func(t *testing.T) {
		_, err := buildRunners(engine.Config{YouTubeAPIKeys: []string{"k1"}, YouTubeChunkSize: -1}, db, cursors)
		assert.Error(t, err)
	})
}

func TestEnvBool(t *testing.T) {
	t.Setenv("VOCAVIEWS_TEST_FLAG", "true")
	assert.True(t, envBool("VOCAVIEWS_TEST_FLAG", false))

	t.Setenv("VOCAVIEWS_TEST_FLAG", "nope")
	assert.True(t, envBool("VOCAVIEWS_TEST_FLAG", true), "invalid values fall back to the default")

	t.Setenv("VOCAVIEWS_TEST_FLAG", "")
	assert.False(t, envBool("VOCAVIEWS_TEST_FLAG", false))
}
