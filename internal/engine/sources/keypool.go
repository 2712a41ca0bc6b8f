package sources

import (
	"errors"
	"strings"
	"sync"
)

// ErrNoAPIKeys is returned when a key pool would be empty.
var ErrNoAPIKeys = errors.New("at least one API key is required")

// KeyPool is a ring of API keys with a single current key.
// Rotate always advances to the next key, wrapping after the last one.
// Chunks running in parallel may each rotate on the same quota error; that
// only burns through keys faster and is accepted.
type KeyPool struct {
	mu        sync.Mutex
	keys      []string
	idx       int
	rotations int
}

// NewKeyPool creates a pool from keys, ignoring blank entries.
func NewKeyPool(keys []string) (*KeyPool, error) {
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoAPIKeys
	}
	return &KeyPool{keys: clean}, nil
}

// Current returns the key requests should use now.
func (p *KeyPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.idx]
}

// Rotate advances to the next key and returns it.
func (p *KeyPool) Rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = (p.idx + 1) % len(p.keys)
	p.rotations++
	return p.keys[p.idx]
}

// Rotations returns how many times Rotate has been called.
func (p *KeyPool) Rotations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotations
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int { return len(p.keys) }

// maskKey hides all but the last four characters of a key for logging.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
