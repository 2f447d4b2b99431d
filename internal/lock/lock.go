// Package lock provides the per-trigger message lock and its key/value stores.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld reports that another pipeline holds the key.
var ErrLockHeld = errors.New("message lock held")

const (
	DefaultTTL       = 5 * time.Minute
	DefaultKeyPrefix = "reply:lock:"
)

// Store is a set-if-absent key/value store with expiry.
type Store interface {
	// SetIfAbsent stores value under key for ttl unless a live value exists. It reports whether it stored.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// MessageLock is an advisory mutex keyed by trigger message id.
type MessageLock struct {
	store  Store
	ttl    time.Duration
	prefix string
	owner  string
	logger *slog.Logger
}

// Options configures a MessageLock. Zero values take the defaults.
type Options struct {
	TTL       time.Duration
	KeyPrefix string
}

// NewMessageLock creates a lock over store.
func NewMessageLock(log *slog.Logger, store Store, opts Options) *MessageLock {
	if log == nil {
		log = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	host, _ := os.Hostname()
	return &MessageLock{
		store:  store,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		owner:  strings.Trim(host+"/"+uuid.NewString(), "/"),
		logger: log.With(slog.String("component", "message_lock")),
	}
}

// Key returns the store key of triggerID.
func (l *MessageLock) Key(triggerID string) string {
	return l.prefix + triggerID
}

// TryAcquire takes the lock for triggerID. A held lock returns ErrLockHeld.
func (l *MessageLock) TryAcquire(ctx context.Context, triggerID string) error {
	if strings.TrimSpace(triggerID) == "" {
		return errors.New("trigger id is required")
	}
	ok, err := l.store.SetIfAbsent(ctx, l.Key(triggerID), l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("acquire message lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.logger.Debug("message lock acquired", slog.String("trigger_id", triggerID))
	return nil
}

// Release removes the lock for triggerID.
func (l *MessageLock) Release(ctx context.Context, triggerID string) error {
	if err := l.store.Delete(ctx, l.Key(triggerID)); err != nil {
		return fmt.Errorf("release message lock: %w", err)
	}
	l.logger.Debug("message lock released", slog.String("trigger_id", triggerID))
	return nil
}
