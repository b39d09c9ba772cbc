package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"suburbiq/internal/model"

	"github.com/dgraph-io/badger/v4"
)

const (
	contextPrefix = "ctx:"
	averagePrefix = "avg:"

	// updateAttempts bounds transactions retried after a write conflict
	updateAttempts = 2
)

// OpenBadger opens a badger database at path, or in memory when path is empty
func OpenBadger(path string) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// BadgerContextStore persists session contexts as JSON with a per-key TTL
type BadgerContextStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerContextStore creates a context store over db
func NewBadgerContextStore(db *badger.DB, ttl time.Duration) *BadgerContextStore {
	return &BadgerContextStore{db: db, ttl: ttl}
}

// Get implements ContextStore
func (s *BadgerContextStore) Get(ctx context.Context, sessionID string) (model.UserContext, error) {
	var uc model.UserContext
	_, err := getJSON(s.db, contextPrefix+sessionID, &uc)
	if err != nil {
		return model.UserContext{}, fmt.Errorf("failed to read context: %w", err)
	}
	return uc.Clone(), nil
}

// Update implements ContextStore. The read-merge-write runs in one
// transaction, rerun once when a concurrent update to the session conflicts.
func (s *BadgerContextStore) Update(ctx context.Context, sessionID string, patch model.ContextPatch) (model.UserContext, error) {
	key := []byte(contextPrefix + sessionID)
	var merged model.UserContext

	err := retryConflict(updateAttempts, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			var current model.UserContext
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &current)
				}); err != nil {
					return err
				}
			}

			merged = patch.Apply(current).Clone()
			data, err := json.Marshal(merged)
			if err != nil {
				return err
			}
			return txn.SetEntry(newEntry(key, data, s.ttl))
		})
	})
	if err != nil {
		return model.UserContext{}, fmt.Errorf("failed to update context: %w", err)
	}
	return merged, nil
}

// retryConflict runs fn up to attempts times while it fails with a badger
// transaction conflict
func retryConflict(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Reset implements ContextStore
func (s *BadgerContextStore) Reset(ctx context.Context, sessionID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(contextPrefix + sessionID))
	})
	if err != nil {
		return fmt.Errorf("failed to reset context: %w", err)
	}
	return nil
}

// BadgerAverageCache persists state averages with a per-key TTL
type BadgerAverageCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerAverageCache creates an average cache over db
func NewBadgerAverageCache(db *badger.DB, ttl time.Duration) *BadgerAverageCache {
	return &BadgerAverageCache{db: db, ttl: ttl}
}

// Get implements AverageCache
func (c *BadgerAverageCache) Get(ctx context.Context, key string) (model.StateAverage, bool, error) {
	var avg model.StateAverage
	found, err := getJSON(c.db, averagePrefix+key, &avg)
	if err != nil {
		return model.StateAverage{}, false, fmt.Errorf("failed to read average: %w", err)
	}
	return avg, found, nil
}

// Set implements AverageCache
func (c *BadgerAverageCache) Set(ctx context.Context, key string, avg model.StateAverage) error {
	data, err := json.Marshal(avg)
	if err != nil {
		return fmt.Errorf("failed to encode average: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry([]byte(averagePrefix+key), data, c.ttl))
	})
	if err != nil {
		return fmt.Errorf("failed to write average: %w", err)
	}
	return nil
}

func newEntry(key, data []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(key, data)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// getJSON decodes the value at key into target; a missing key is not an error
func getJSON(db *badger.DB, key string, target interface{}) (bool, error) {
	found := false
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, target)
		})
	})
	return found, err
}
