package stock

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
)

const (
	defaultRetryBase   = 25 * time.Millisecond
	defaultMaxRetries  = 3
	defaultRetryJitter = 10 * time.Millisecond
)

type retryPolicy struct {
	base       time.Duration
	jitter     time.Duration
	maxRetries uint64
}

func (p retryPolicy) backoff() retry.Backoff {
	base := p.base
	if base <= 0 {
		base = defaultRetryBase
	}
	b := retry.NewExponential(base)
	if p.jitter > 0 {
		b = retry.WithJitter(p.jitter, b)
	}
	return retry.WithMaxRetries(p.maxRetries, b)
}

// inTx runs fn in a fresh transaction, re-running the whole transaction when
// the store reports a write conflict. Exhausted retries surface as
// CONCURRENT_WRITE.
func (s *service) inTx(ctx context.Context, action string, fn func(tx *gorm.DB) error) error {
	attempts := 0
	err := retry.Do(ctx, s.retry.backoff(), func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			s.metrics.IncRetry(action)
		}
		err := s.tx.WithTx(ctx, fn)
		if err != nil && db.IsConflict(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && db.IsConflict(err) {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"action": action, "attempts": attempts})
			s.logg.Warn(logCtx, "stock write conflict retries exhausted")
		}
		return pkgerrors.Wrap(pkgerrors.CodeConcurrentWrite, err, "stock row is busy").
			WithDetails(map[string]any{"attempts": attempts})
	}
	return err
}
