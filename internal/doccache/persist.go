package doccache

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inventorycmdb/server/internal/atomicfile"
	"github.com/inventorycmdb/server/internal/domain"
)

// persistVersion is bumped whenever the on-disk layout changes
const persistVersion = 1

type persistedCache struct {
	Version int              `yaml:"version"`
	Entries map[string]Entry `yaml:"entries"`
}

// Persist writes the whole cache to its file
func (c *Cache) Persist() error {
	if c.path == "" {
		return nil
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	data, err := yaml.Marshal(persistedCache{
		Version: persistVersion,
		Entries: c.Entries(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	return atomicfile.Write(c.path, data, 0644)
}

func (c *Cache) loadPersisted() {
	if c.path == "" {
		return
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	// Whatever is on disk, it came from an earlier run.
	c.restored.Store(true)

	if err != nil {
		c.logger.Warn("failed to read document cache, starting empty", "path", c.path, "error", err)
		return
	}

	var pc persistedCache
	if err := yaml.Unmarshal(data, &pc); err != nil {
		c.logger.Warn("document cache is corrupt, starting empty", "path", c.path, "error", err)
		return
	}
	if pc.Version != persistVersion {
		c.logger.Warn("document cache has unsupported version, starting empty",
			"path", c.path,
			"version", pc.Version,
		)
		return
	}

	entries := make(map[string]Entry, len(pc.Entries))
	for url, entry := range pc.Entries {
		entry.URL = url
		if entry.Failure == nil && entry.Document == nil {
			entry.Document = domain.NewDocument()
		}
		entries[url] = entry
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.logger.Info("loaded document cache", "path", c.path, "entries", len(entries))
}
