package service

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"go.uber.org/zap"
)

// delimiter that cannot occur inside a service or span name.
const dedupKeyDelimiter = "෴"

// DeduplicatingExecutor suppresses re-writes of idempotent index rows. The
// span_by_service catalog row for a busy service would otherwise be rewritten
// on every ingested span even though its value never changes.
//
// Losing a check-then-mark race, or an eviction dropping a key early, only
// costs one redundant write of an identical row; a key that was never marked
// is always let through.
type DeduplicatingExecutor struct {
	session client.Session
	cache   *ristretto.Cache
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewDeduplicatingExecutor(
	session client.Session,
	ttl time.Duration,
	logger *zap.Logger,
) (*DeduplicatingExecutor, error) {
	// The key space is service x span names, bounded by application
	// cardinality, so a small cache suffices.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 16,
		MaxCost:     1 << 13,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DeduplicatingExecutor{
		session: session,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// DedupKey joins a service and span name into a cache key.
func DedupKey(serviceName string, spanName string) string {
	return serviceName + dedupKeyDelimiter + spanName
}

// MaybeExecuteAsync executes the bound statement unless dedupKey was already
// written within the TTL window, reporting whether a write was issued. The
// write itself happens asynchronously and outlives the caller's context;
// failure is logged and dropped, never retried or propagated, because the row
// is best-effort and will be re-offered by the next span.
func (de *DeduplicatingExecutor) MaybeExecuteAsync(
	ctx context.Context,
	stmt string,
	dedupKey string,
	values ...interface{},
) bool {
	now := de.now()
	if cached, found := de.cache.Get(dedupKey); found {
		if writtenAt, ok := cached.(time.Time); ok && now.Sub(writtenAt) < de.ttl {
			return false
		}
	}
	de.cache.Set(dedupKey, now, 1)

	detachedCtx := context.WithoutCancel(ctx)
	go func() {
		if err := de.session.Query(stmt, values...).WithContext(detachedCtx).Exec(); err != nil {
			de.logger.Error(
				"Failed to execute deduplicated write",
				zap.String("dedup_key", dedupKey),
				zap.Error(err),
			)
		}
	}()
	return true
}
