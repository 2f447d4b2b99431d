package lock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store on the reply_locks table. Expired rows are overwritten in place.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore uses pool; the reply_locks migration must have been applied.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const setIfAbsentSQL = `
INSERT INTO reply_locks (key, owner, expires_at)
VALUES ($1, $2, now() + $3 * interval '1 millisecond')
ON CONFLICT (key) DO UPDATE
SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
WHERE reply_locks.expires_at <= now()`

func (s *PostgresStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, setIfAbsentSQL, key, value, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reply_locks WHERE key = $1`, key)
	return err
}
