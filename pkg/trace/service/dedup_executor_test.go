package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeduplicatingExecutor_MaybeExecuteAsync(t *testing.T) {
	ctx := context.Background()

	t.Run("Issues exactly one write for the same key within the TTL", func(t *testing.T) {
		session := newMockSession()
		executor, clock := newTestExecutor(t, session, time.Hour)

		issued := executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get")
		assert.True(t, issued)
		executor.cache.Wait()

		clock.advance(30 * time.Minute)
		issued = executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get")
		assert.False(t, issued)

		assert.Eventually(t, func() bool {
			return session.countExecuted(insertServiceSpanNameStatement) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Issues a second write once the TTL has elapsed", func(t *testing.T) {
		session := newMockSession()
		executor, clock := newTestExecutor(t, session, time.Hour)

		assert.True(t, executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get"))
		executor.cache.Wait()

		clock.advance(time.Hour + time.Minute)
		assert.True(t, executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get"))

		assert.Eventually(t, func() bool {
			return session.countExecuted(insertServiceSpanNameStatement) == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Never suppresses a key it has not seen", func(t *testing.T) {
		session := newMockSession()
		executor, _ := newTestExecutor(t, session, time.Hour)

		assert.True(t, executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get"))
		executor.cache.Wait()
		assert.True(t, executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "backend/get", "backend", "get"))

		assert.Eventually(t, func() bool {
			return session.countExecuted(insertServiceSpanNameStatement) == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Logs and drops a failed write without propagating", func(t *testing.T) {
		session := newMockSession()
		session.execErrs[insertServiceSpanNameStatement] = errors.New("write timeout")
		executor, _ := newTestExecutor(t, session, time.Hour)

		assert.True(t, executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get"))

		assert.Eventually(t, func() bool {
			return session.countExecuted(insertServiceSpanNameStatement) == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Is safe under concurrent callers on the same key", func(t *testing.T) {
		session := newMockSession()
		executor, _ := newTestExecutor(t, session, time.Hour)

		done := make(chan struct{})
		for i := 0; i < 8; i++ {
			go func() {
				defer func() { done <- struct{}{} }()
				executor.MaybeExecuteAsync(ctx, insertServiceSpanNameStatement, "frontend/get", "frontend", "get")
			}()
		}
		for i := 0; i < 8; i++ {
			<-done
		}
		// a lost check-then-mark race may issue extra writes of the same
		// idempotent row, but at least one must land
		assert.Eventually(t, func() bool {
			return session.countExecuted(insertServiceSpanNameStatement) >= 1
		}, time.Second, 5*time.Millisecond)
	})
}

type manualClock struct {
	current time.Time
}

func (mc *manualClock) advance(d time.Duration) {
	mc.current = mc.current.Add(d)
}

func newTestExecutor(
	t *testing.T,
	session *mockSession,
	ttl time.Duration,
) (*DeduplicatingExecutor, *manualClock) {
	executor, err := NewDeduplicatingExecutor(session, ttl, zap.NewNop())
	require.NoError(t, err)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	executor.now = func() time.Time { return clock.current }
	return executor, clock
}
