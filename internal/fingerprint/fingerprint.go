// Package fingerprint computes content-derived digests of files. Digests
// are xxhash64 of the file bytes, so comparison is independent of
// timestamps: a touched-but-unmodified file keeps its fingerprint and a
// fresh checkout with new mtimes still matches the previous run.
package fingerprint

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	digest   string
	size     int64
	modTime  time.Time
	hashedAt time.Time
}

// A cache entry is racy when the file was modified close to the moment it
// was hashed: a subsequent same-size rewrite could land inside the
// filesystem's timestamp granularity and keep both size and mtime. Racy
// entries are never trusted and the file is re-read; the window covers
// even coarse-granularity filesystems.
const racyWindow = 2 * time.Second

// Hasher fingerprints files, memoizing digests in an LRU keyed by path.
// A cached digest is reused only while the file's size and mtime still
// match, and only when the entry is old enough that a same-mtime rewrite
// is ruled out (see racyWindow). Useful in watch mode where most files do
// not change between scans.
type Hasher struct {
	cache *lru.Cache[string, cacheEntry]
}

func NewHasher(cacheSize int) (*Hasher, error) {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating fingerprint cache: %w", err)
	}
	return &Hasher{cache: cache}, nil
}

// File returns the fingerprint of the file at path.
func (h *Hasher) File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stating %s: %w", path, err)
	}

	if entry, ok := h.cache.Get(path); ok {
		trusted := entry.hashedAt.Sub(entry.modTime) >= racyWindow
		if trusted && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.digest, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	sum := fmt.Sprintf("%016x", digest.Sum64())

	h.cache.Add(path, cacheEntry{
		digest:   sum,
		size:     info.Size(),
		modTime:  info.ModTime(),
		hashedAt: time.Now(),
	})
	return sum, nil
}

// String fingerprints an arbitrary string, used to derive stable
// directory keys from path pairs.
func String(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
