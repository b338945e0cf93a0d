// Package cache keeps a ledger of archive builds.
//
// Each target has one entry holding the outcome of its most recent build:
// the run that produced it, the staleness reason that triggered it and a
// fingerprint of the configuration it was built with. A later run compares
// fingerprints to notice changed flags or include directories, which file
// timestamps alone cannot reveal.
//
// Parsed include lists are never stored; every run scans sources again.
// Entries are JSON documents in a BoltDB bucket keyed by target name.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultCacheDir is the default cache directory name
	DefaultCacheDir = ".ccb-cache"

	// bucketName is the BoltDB bucket name for ledger entries
	bucketName = "builds"
)

// Cache stores build entries using BoltDB
type Cache struct {
	db   *bbolt.DB
	root string // Root directory for cache (.ccb-cache/)
}

// New creates a new cache instance
// If cacheDir is empty, uses DefaultCacheDir in current working directory
func New(cacheDir string) (*Cache, error) {
	if cacheDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		cacheDir = filepath.Join(cwd, DefaultCacheDir)
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Open BoltDB
	dbPath := filepath.Join(cacheDir, "ledger.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Cache{
		db:   db,
		root: cacheDir,
	}, nil
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}

	return nil
}

// Root returns the cache directory
func (c *Cache) Root() string {
	return c.root
}

// Get retrieves the entry for a target
// Returns nil if there is none
func (c *Cache) Get(target string) (*Entry, error) {
	var entry *Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data := b.Get([]byte(target))
		if data == nil {
			return nil // Cache miss
		}

		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entry for %s: %w", target, err)
	}

	return entry, nil
}

// Store saves the entry for its target, replacing any previous one
func (c *Cache) Store(entry *Entry) error {
	if entry.Target == "" {
		return errors.New("entry has no target")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		return b.Put([]byte(entry.Target), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// List returns every entry, most recent first
func (c *Cache) List() ([]Entry, error) {
	var entries []Entry

	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		return b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt entry %s: %w", k, err)
			}

			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries, nil
}

// Delete removes the entry for a target
func (c *Cache) Delete(target string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(target))
	})
}

// Clear removes all entries
func (c *Cache) Clear() error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	return nil
}

// Stats returns the number of entries and the total size of the archives they point at
func (c *Cache) Stats() (int, int64, error) {
	entries, err := c.List()
	if err != nil {
		return 0, 0, err
	}

	var totalSize int64
	for _, entry := range entries {
		if entry.Archive == "" {
			continue
		}

		if info, err := os.Stat(entry.Archive); err == nil {
			totalSize += info.Size()
		}
	}

	return len(entries), totalSize, nil
}
