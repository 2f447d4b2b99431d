package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// OutboundPolicy controls chunking and retries of outbound sends.
type OutboundPolicy struct {
	TextChunkLimit int
	RetryMax       int
	RetryBackoff   time.Duration
}

// NormalizeOutboundPolicy fills unset fields with defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextChunkLimit <= 0 {
		policy.TextChunkLimit = 4000
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = 500 * time.Millisecond
	}
	return policy
}

// Retry calls fn up to policy.RetryMax times with linear backoff.
func Retry[T any](ctx context.Context, log *slog.Logger, policy OutboundPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	policy = NormalizeOutboundPolicy(policy)
	var (
		zero    T
		lastErr error
	)
	for i := 0; i < policy.RetryMax; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s aborted: %w", op, errors.Join(ctxErr, err))
		}
		if log != nil {
			log.Warn("outbound retry", slog.String("op", op), slog.Int("attempt", i+1), slog.Any("error", err))
		}
		if i == policy.RetryMax-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(i+1) * policy.RetryBackoff):
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, policy.RetryMax, lastErr)
}

// ChunkText splits text into pieces of at most limit runes, preferring line boundaries.
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || runeLen(trimmed) <= limit {
		return []string{trimmed}
	}
	lines := strings.Split(trimmed, "\n")
	chunks := make([]string, 0)
	buf := make([]string, 0, len(lines))
	bufLen := 0
	for _, line := range lines {
		lineLen := runeLen(line)
		sepLen := 0
		if len(buf) > 0 {
			sepLen = 1
		}
		if bufLen+sepLen+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sepLen + lineLen
			continue
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		chunks = append(chunks, splitLongLine(line, limit)...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, "\n"))
	}
	return chunks
}

func runeLen(value string) int {
	return len([]rune(value))
}

func splitLongLine(line string, limit int) []string {
	runes := []rune(line)
	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		segment := strings.TrimSpace(string(runes[start:end]))
		if segment == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	return chunks
}
