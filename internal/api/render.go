package api

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// emptyVars is what an empty vars mapping renders to
const emptyVars = "---\n"

// renderCache memoises rendered vars documents. Keys include the snapshot
// ID so entries from an older snapshot are never served after a rebuild.
type renderCache struct {
	cache *lru.Cache[string, []byte]
}

func newRenderCache(size int) (*renderCache, error) {
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &renderCache{cache: cache}, nil
}

// render returns vars as a YAML document with sorted keys
func (c *renderCache) render(snapshotID, path string, vars map[string]any) ([]byte, error) {
	key := snapshotID + "|" + path
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}

	out, err := renderVars(vars)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, out)
	return out, nil
}

func (c *renderCache) len() int {
	return c.cache.Len()
}

func renderVars(vars map[string]any) ([]byte, error) {
	if len(vars) == 0 {
		return []byte(emptyVars), nil
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(vars); err != nil {
		return nil, fmt.Errorf("failed to render vars: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render vars: %w", err)
	}

	return buf.Bytes(), nil
}
