// Package cache persists operation results keyed by fingerprint.
//
// Caching here is strictly an optimization: a corrupted or unreadable entry
// is treated as a cache-miss, never as an error, so a caching bug can never
// block a correct operation from proceeding. Freshness is evaluated lazily on
// read; Compact reclaims expired entries when asked.
//
// Storage is a single BoltDB file, which gives overwrite-safe concurrent
// access within a process and a file lock (with timeout) across processes.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// bucketName is the BoltDB bucket holding cache entries
const bucketName = "operations"

// Scope selects entries for invalidation. Zero-value fields widen the match:
// an empty Project matches every project, an empty Kind every kind.
type Scope struct {
	Project string
	Kind    string
}

func (s Scope) matches(e *Entry) bool {
	if s.Project != "" && e.Project != s.Project {
		return false
	}

	if s.Kind != "" && e.Kind != s.Kind {
		return false
	}

	return true
}

// Stats summarizes the cache content.
type Stats struct {
	Total     int
	Fresh     int
	Expired   int
	Corrupt   int
	PerKind   map[string]int
	SizeBytes int64
}

// Store manages cache entries in BoltDB.
type Store struct {
	db   *bbolt.DB
	path string

	// now is swapped in freshness tests
	now func() time.Time
}

// Open creates or opens the cache database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, "cache.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}, nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Get returns the entry for the fingerprint if it exists and is still within
// its freshness window. Absent, expired and undecodable entries all report a
// miss.
func (s *Store) Get(fingerprint string) (*Entry, bool) {
	var data []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket([]byte(bucketName)).Get([]byte(fingerprint)); raw != nil {
			data = append([]byte(nil), raw...)
		}

		return nil
	})
	if err != nil || data == nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry, treat as miss
		return nil, false
	}

	if entry.Expired(s.now()) {
		return nil, false
	}

	return &entry, true
}

// IsValid reports whether a fresh entry of the given kind exists for the
// fingerprint.
func (s *Store) IsValid(fingerprint, kind string) bool {
	entry, ok := s.Get(fingerprint)
	return ok && entry.Kind == kind
}

// Store persists the entry, overwriting any prior entry for the same
// fingerprint. Concurrent writers for different fingerprints are safe;
// writers for the same fingerprint are expected to be deduplicated upstream,
// and last-writer-wins if they are not.
func (s *Store) Store(entry *Entry) error {
	if entry.Fingerprint == "" {
		return fmt.Errorf("cache entry has no fingerprint")
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(entry.Fingerprint), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Invalidate removes every entry matching the scope, regardless of
// freshness. Undecodable entries always match: they are unusable anyway.
// Returns the number of entries removed.
func (s *Store) Invalidate(scope Scope) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		var victims [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				victims = append(victims, append([]byte(nil), k...))
				return nil
			}

			if scope.matches(&entry) {
				victims = append(victims, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range victims {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(victims)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache entries: %w", err)
	}

	return removed, nil
}

// Compact removes expired and undecodable entries. Fresh entries survive.
// Returns the number of entries removed.
func (s *Store) Compact() (int, error) {
	now := s.now()
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		var victims [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				victims = append(victims, append([]byte(nil), k...))
				return nil
			}

			if entry.Expired(now) {
				victims = append(victims, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range victims {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(victims)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to compact cache: %w", err)
	}

	return removed, nil
}

// Stats returns cache statistics.
func (s *Store) Stats() (*Stats, error) {
	now := s.now()
	stats := &Stats{PerKind: make(map[string]int)}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			stats.Total++

			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				stats.Corrupt++
				return nil
			}

			if entry.Expired(now) {
				stats.Expired++
			} else {
				stats.Fresh++
			}

			stats.PerKind[entry.Kind]++

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}

	return stats, nil
}
