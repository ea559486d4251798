// Package manifest persists the path→fingerprint state of a source tree
// between runs. A manifest is the sole source of truth for "what changed":
// it reflects the state as of the end of the last successful run, and is
// replaced wholesale only after all file mutations for a run succeed.
package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const keyPrefix = "manifest:"

// Values above this size are stored zstd-compressed. Small manifests are
// not worth the frame overhead.
const compressMinSize = 1024

const (
	frameRaw  byte = 0
	frameZstd byte = 1
)

// Store keeps one manifest per scope in a badger database. Each scope maps
// to a single key, so a commit is one Set inside one transaction and is
// therefore an atomic replace: readers observe either the previous
// manifest or the new one, never a mix.
//
// Concurrent processes against the same database are not supported; the
// caller serializes runs.
type Store struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

func NewStore(db *badger.DB, logger *zap.Logger) (*Store, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &Store{
		db:      db,
		encoder: encoder,
		decoder: decoder,
		logger:  logger,
	}, nil
}

// Scope derives the manifest key for a (source, target) directory pair.
// Both paths are canonicalized so the same pair resolves to the same
// manifest regardless of the working directory.
func Scope(sourceDir, targetDir string) string {
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		src = filepath.Clean(sourceDir)
	}
	dst, err := filepath.Abs(targetDir)
	if err != nil {
		dst = filepath.Clean(targetDir)
	}
	return src + "->" + dst
}

// Load returns the manifest for scope, or an empty map if none has been
// committed yet (the first-run case).
func (s *Store) Load(scope string) (map[string]string, error) {
	fingerprints := make(map[string]string)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(scope))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return s.decode(val, &fingerprints)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading manifest for %s: %w", scope, err)
	}

	return fingerprints, nil
}

// Commit replaces the manifest for scope wholesale.
func (s *Store) Commit(scope string, fingerprints map[string]string) error {
	payload, err := s.encode(fingerprints)
	if err != nil {
		return fmt.Errorf("encoding manifest for %s: %w", scope, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(scope), payload)
	})
	if err != nil {
		return fmt.Errorf("committing manifest for %s: %w", scope, err)
	}

	s.logger.Debug("manifest committed",
		zap.String("scope", scope),
		zap.Int("files", len(fingerprints)),
		zap.Int("bytes", len(payload)))
	return nil
}

// Forget drops the manifest for scope, forcing the next run to reprocess
// every file. Dropping a scope that was never committed is a no-op.
func (s *Store) Forget(scope string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(scope))
	})
	if err != nil {
		return fmt.Errorf("forgetting manifest for %s: %w", scope, err)
	}
	return nil
}

func (s *Store) key(scope string) []byte {
	return []byte(keyPrefix + scope)
}

func (s *Store) encode(fingerprints map[string]string) ([]byte, error) {
	body, err := json.Marshal(fingerprints)
	if err != nil {
		return nil, err
	}

	if len(body) < compressMinSize {
		return append([]byte{frameRaw}, body...), nil
	}
	return s.encoder.EncodeAll(body, []byte{frameZstd}), nil
}

func (s *Store) decode(val []byte, fingerprints *map[string]string) error {
	if len(val) == 0 {
		return nil
	}

	switch val[0] {
	case frameRaw:
		return json.Unmarshal(val[1:], fingerprints)
	case frameZstd:
		body, err := s.decoder.DecodeAll(val[1:], nil)
		if err != nil {
			return fmt.Errorf("decompressing manifest: %w", err)
		}
		return json.Unmarshal(body, fingerprints)
	default:
		return fmt.Errorf("unknown manifest frame marker %d", val[0])
	}
}
