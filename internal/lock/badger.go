package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore is a Store on an embedded BadgerDB. Expiry uses badger entry TTLs.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures BadgerStore.
type BadgerOptions struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// NewBadgerStore opens the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("lock: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: log.With(slog.String("component", "badger"))})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	k := []byte(key)
	stored := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.SetEntry(badger.NewEntry(k, []byte(value)).WithTTL(ttl)); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		// a concurrent transaction wrote the key first
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored, nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger forwards warnings and errors to slog and drops the chatty levels.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}
