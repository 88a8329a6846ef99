// Package snapshot caches per-file IR documents and semantic snapshots in
// BadgerDB, keyed by file path and source snapshot id, so unchanged files
// skip the per-file stages on the next build.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/efebarandurmaz/codegraph/internal/ir"
	"github.com/efebarandurmaz/codegraph/internal/semantic"
)

// Config holds configuration for a Cache.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Cache is safe for concurrent use.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the cache database.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("snapshot cache: path is required for a persistent cache")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}
	return &Cache{db: db, logger: logger}, nil
}

func documentKey(variant, path, snapshotID string) []byte {
	return []byte("ir/" + variant + "/" + path + "@" + snapshotID)
}

func semanticKey(path, snapshotID string) []byte {
	return []byte("sem/" + path + "@" + snapshotID)
}

// GetDocument returns the cached IR document for a file version. Variant
// distinguishes builder configurations. Entries that fail validation are
// dropped and reported as misses.
func (c *Cache) GetDocument(variant, path, snapshotID string) (*ir.Document, bool, error) {
	if snapshotID == "" {
		return nil, false, nil
	}
	key := documentKey(variant, path, snapshotID)
	var doc ir.Document
	found, err := c.get(key, &doc)
	if err != nil || !found {
		return nil, false, err
	}
	if err := ir.Validate(&doc); err != nil || doc.File != path {
		c.logger.Warn("dropping invalid cached document", "file", path, "error", err)
		c.misses.Add(1)
		c.hits.Add(-1)
		return nil, false, c.delete(key)
	}
	return &doc, true, nil
}

// PutDocument stores an IR document. Documents without a snapshot id are
// not cached.
func (c *Cache) PutDocument(variant string, doc *ir.Document) error {
	if doc.SnapshotID == "" {
		return nil
	}
	return c.put(documentKey(variant, doc.File, doc.SnapshotID), doc)
}

// GetSnapshot returns the cached semantic snapshot for a file version.
func (c *Cache) GetSnapshot(path, snapshotID string) (*semantic.Snapshot, bool, error) {
	if snapshotID == "" {
		return nil, false, nil
	}
	var entries []semantic.Entry
	found, err := c.get(semanticKey(path, snapshotID), &entries)
	if err != nil || !found {
		return nil, false, err
	}
	return semantic.NewSnapshot(path, snapshotID, entries), true, nil
}

// PutSnapshot stores a semantic snapshot.
func (c *Cache) PutSnapshot(s *semantic.Snapshot) error {
	if s == nil || s.SnapshotID == "" {
		return nil
	}
	return c.put(semanticKey(s.File, s.SnapshotID), s.Entries())
}

// Stats returns the hit and miss counts since Open.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(key []byte, v any) (bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	c.hits.Add(1)
	return true, nil
}

func (c *Cache) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (c *Cache) delete(key []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
