package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMessageLockAcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewMessageLock(logger.Discard(), NewMemoryStore(nil), Options{})

	require.NoError(t, l.TryAcquire(ctx, "om_1"))
	assert.ErrorIs(t, l.TryAcquire(ctx, "om_1"), ErrLockHeld)
	require.NoError(t, l.TryAcquire(ctx, "om_2"), "keys are independent")

	require.NoError(t, l.Release(ctx, "om_1"))
	require.NoError(t, l.TryAcquire(ctx, "om_1"))
	assert.Equal(t, DefaultKeyPrefix+"om_1", l.Key("om_1"))
	assert.Error(t, l.TryAcquire(ctx, " "))
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := &clock{now: time.Unix(0, 0)}
	s := NewMemoryStore(c.Now)

	ok, _ := s.SetIfAbsent(ctx, "k", "a", time.Minute)
	require.True(t, ok)
	ok, _ = s.SetIfAbsent(ctx, "k", "b", time.Minute)
	require.False(t, ok)

	c.Advance(time.Minute)
	assert.Equal(t, 0, s.Len())
	ok, _ = s.SetIfAbsent(ctx, "k", "b", time.Minute)
	assert.True(t, ok, "expired entry can be replaced")
}

func TestMemoryStoreSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.SetIfAbsent(ctx, "k", "v", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

type failingStore struct{}

func (failingStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func (failingStore) Delete(context.Context, string) error { return errors.New("store down") }

func TestMessageLockStoreErrors(t *testing.T) {
	t.Parallel()
	l := NewMessageLock(logger.Discard(), failingStore{}, Options{TTL: time.Second, KeyPrefix: "x:"})
	err := l.TryAcquire(context.Background(), "om_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	assert.Error(t, l.Release(context.Background(), "om_1"))
}

func TestBadgerStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := NewBadgerStore(BadgerOptions{InMemory: true, Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ok, err := s.SetIfAbsent(ctx, "reply:lock:om_1", "owner", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "reply:lock:om_1", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "reply:lock:om_1"))
	require.NoError(t, s.Delete(ctx, "reply:lock:missing"))

	ok, err = s.SetIfAbsent(ctx, "reply:lock:om_1", "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBadgerStoreRequiresDir(t *testing.T) {
	t.Parallel()
	_, err := NewBadgerStore(BadgerOptions{})
	assert.Error(t, err)
}

func TestOpenStoreMemoryAndUnknown(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	s, closeFn, err := OpenStore(context.Background(), logger.Discard(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	require.NoError(t, closeFn())

	cfg.Lock.Backend = "zookeeper"
	_, _, err = OpenStore(context.Background(), logger.Discard(), cfg)
	assert.Error(t, err)
}

// REPLYD_TEST_PG_DSN points at a scratch database, e.g. postgres://u:p@localhost:5432/replyd_test?sslmode=disable.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("REPLYD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("REPLYD_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS reply_locks (key TEXT PRIMARY KEY, owner TEXT NOT NULL, expires_at TIMESTAMPTZ NOT NULL)`)
	require.NoError(t, err)

	s := NewPostgresStore(pool)
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	ok, err := s.SetIfAbsent(ctx, key, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SetIfAbsent(ctx, key, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.SetIfAbsent(ctx, key, "b", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SetIfAbsent(ctx, key, "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired row is taken over")
}
