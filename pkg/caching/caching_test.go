package caching

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	if _, ok := c.Get("https://example.com"); ok {
		t.Fatal("Get() hit on empty cache")
	}
	if err := c.Set("https://example.com", []byte("<html></html>")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, ok := c.Get("https://example.com")
	if !ok {
		t.Fatal("Get() missed after Set()")
	}
	if string(data) != "<html></html>" {
		t.Errorf("Get() = %q, want %q", data, "<html></html>")
	}
}

func TestCache_Expired(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, time.Minute)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if err := c.Set("https://example.com", []byte("old")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Minute)
	path := c.file("https://example.com")
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if _, ok := c.Get("https://example.com"); ok {
		t.Error("Get() returned expired entry")
	}
}

func TestCache_Prune(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, time.Minute)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	urls := []string{"https://a.example/", "https://b.example/"}
	for _, u := range urls {
		if err := c.Set(u, []byte(u)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(c.file(urls[0]), old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}
	if _, ok := c.Get(urls[1]); !ok {
		t.Error("Prune() removed a fresh entry")
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("Prune() removed a foreign file")
	}

	forever, _ := NewCache(dir, 0)
	if n, _ := forever.Prune(); n != 0 {
		t.Errorf("Prune() without a ttl removed %d", n)
	}
}
