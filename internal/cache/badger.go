package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache keeps entries in an in-memory badger database.
//
// Badger gives native per-entry TTL and prefix deletion. The database never
// touches disk, so plaintext values are not persisted.
type BadgerCache struct {
	db         *badger.DB
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewBadgerCache opens an in-memory badger database.
func NewBadgerCache(opts Options, logger *slog.Logger) (*BadgerCache, error) {
	badgerOpts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}
	return &BadgerCache{db: db, defaultTTL: opts.DefaultTTL, logger: logger}, nil
}

func (b *BadgerCache) Get(_ context.Context, key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			b.logger.Debug("badger cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	return value, true
}

func (b *BadgerCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		b.logger.Debug("badger cache write failed", slog.Any("error", err))
	}
}

func (b *BadgerCache) DeletePrefix(_ context.Context, prefix string) error {
	if err := b.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("failed to drop cache prefix %q: %w", prefix, err)
	}
	return nil
}

func (b *BadgerCache) Close() error {
	return b.db.Close()
}
