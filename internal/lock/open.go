package lock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/db"
)

// Backends accepted by OpenStore.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// OpenStore opens the configured backend. The returned close func releases its resources.
func OpenStore(ctx context.Context, log *slog.Logger, cfg config.Config) (Store, func() error, error) {
	switch cfg.Lock.Backend {
	case "", BackendMemory:
		return NewMemoryStore(nil), func() error { return nil }, nil
	case BackendBadger:
		s, err := NewBadgerStore(BadgerOptions{Dir: cfg.Lock.BadgerDir, Logger: log})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger lock store: %w", err)
		}
		return s, s.Close, nil
	case BackendPostgres:
		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres lock store: %w", err)
		}
		return NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
}
