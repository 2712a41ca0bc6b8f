package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBrowserClient(t *testing.T) {
	bc, err := NewBrowserClient(5 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, bc)
	assert.NotNil(t, bc.client)

	bc, err = NewBrowserClient(0)
	require.NoError(t, err)
	assert.NotNil(t, bc.client)
}

func TestChromeHeaders(t *testing.T) {
	h := ChromeHeaders()
	for _, key := range []string{"accept", "accept-language", "user-agent"} {
		assert.NotEmpty(t, h[key], key)
	}
	assert.Greater(t, len(h["user-agent"]), 20)
	assert.NotContains(t, h, "accept-encoding")
}
