package moderation

import (
	"fmt"
	"sync"
)

type cachedPreset struct {
	words []string
	refs  int
}

// PresetCache holds preset word lists shared across entities. A preset
// stays cached exactly as long as at least one configured entity
// references it.
type PresetCache struct {
	mu      sync.Mutex
	presets map[int]*cachedPreset
}

func NewPresetCache() *PresetCache {
	return &PresetCache{presets: make(map[int]*cachedPreset)}
}

// Acquire takes a reference on a preset, fetching its words on first
// use. The fetch runs outside any per-entity state so a slow data-plane
// only delays the one configure call.
func (c *PresetCache) Acquire(id int, fetch func(int) ([]string, error)) ([]string, error) {
	c.mu.Lock()
	if p, ok := c.presets[id]; ok {
		p.refs++
		words := p.words
		c.mu.Unlock()
		return words, nil
	}
	c.mu.Unlock()

	words, err := fetch(id)
	if err != nil {
		return nil, fmt.Errorf("fetch preset %d: %w", id, err)
	}
	words = FilterWords(words)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.presets[id]; ok {
		// Lost the fetch race; keep the existing copy.
		p.refs++
		return p.words, nil
	}
	c.presets[id] = &cachedPreset{words: words, refs: 1}
	return words, nil
}

// Release drops one reference; the preset is evicted at zero.
func (c *PresetCache) Release(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.presets[id]
	if !ok {
		return
	}
	p.refs--
	if p.refs <= 0 {
		delete(c.presets, id)
	}
}

// Replace swaps the word list of an already-cached preset. Returns
// false when no live entity references the preset, in which case there
// is nothing to refresh.
func (c *PresetCache) Replace(id int, words []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.presets[id]
	if !ok {
		return false
	}
	p.words = FilterWords(words)
	return true
}

// Words returns the cached word list without touching the refcount.
func (c *PresetCache) Words(id int) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.presets[id]
	if !ok {
		return nil, false
	}
	return p.words, true
}

// Contains reports whether a preset is currently cached.
func (c *PresetCache) Contains(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.presets[id]
	return ok
}
