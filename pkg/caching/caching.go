// Package caching stores fetched pages on disk so repeated extractions of
// the same URL do not hit the network.
package caching

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const ext = ".html"

// Cache is a file-based page cache with a TTL.
type Cache struct {
	path string
	ttl  time.Duration
}

// NewCache creates the cache directory if needed. A ttl of zero or less
// keeps entries forever.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{path: path, ttl: ttl}, nil
}

func (c *Cache) file(url string) string {
	return filepath.Join(c.path, fmt.Sprintf("%x%s", sha256.Sum256([]byte(url)), ext))
}

func (c *Cache) expired(modTime time.Time) bool {
	return c.ttl > 0 && time.Since(modTime) > c.ttl
}

// Get returns the cached page and true when present and fresh.
func (c *Cache) Get(url string) ([]byte, bool) {
	filePath := c.file(url)
	info, err := os.Stat(filePath)
	if err != nil || c.expired(info.ModTime()) {
		return nil, false
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a page. Readers never see a partly written entry.
func (c *Cache) Set(url string, data []byte) error {
	tmp, err := os.CreateTemp(c.path, "page-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.file(url)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

// Prune removes expired entries and returns how many went.
func (c *Cache) Prune() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(c.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil || !c.expired(info.ModTime()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.path, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
