package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrByReference is returned by UploadAssetFromURL: a local store has no
// remote side that could fetch the URL itself.
var ErrByReference = fmt.Errorf("upload by reference: %w", errors.ErrUnsupported)

var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/x-icon":  ".ico",
	"image/avif":    ".avif",
}

// Storage is a content-addressed asset store rooted at Dir.
type Storage struct {
	Dir string
}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
	ModTime   time.Time
}

func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets dir %s: %w", dir, err)
	}
	return &Storage{Dir: dir}, nil
}

// Owns reports whether ref points into the store.
func (s *Storage) Owns(ref string) bool {
	rel, err := filepath.Rel(s.Dir, ref)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func (s *Storage) UploadAssetFromURL(ctx context.Context, url string) (string, error) {
	return "", ErrByReference
}

// UploadAssetFromBytes stores data under its sha256 and returns the file
// path. Storing the same bytes twice returns the same path.
func (s *Storage) UploadAssetFromBytes(ctx context.Context, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("refusing to store an empty asset")
	}

	sum := sha256.Sum256(data)
	path := filepath.Join(s.Dir, hex.EncodeToString(sum[:])+extensionFor(mimeType))
	if s.HasFile(path) {
		return path, nil
	}
	if err := s.SaveFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func extensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := imageExtensions[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// SaveFile writes content through a uniquely named temp file in the
// target directory and renames it into place, so concurrent writers of the
// same path never share a temp file.
func (s *Storage) SaveFile(filePath string, content []byte) error {
	f, err := os.CreateTemp(filepath.Dir(filePath), "asset-*.tmp")
	if err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		err = os.Rename(tmp, filePath)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error saving file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func (s *Storage) HasFile(fn string) bool {
	return fileExists(fn)
}

// GetFileStats stats a stored file without reading it.
func (s *Storage) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}
