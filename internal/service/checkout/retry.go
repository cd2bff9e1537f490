package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// RetryPolicy задаёт повторы условного списания после optimistic-конфликта.
// MaxAttempts <= 0 означает повторять до разрешения конфликта.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy возвращает ограниченную политику с короткими задержками.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   50,
		InitialDelay:  time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func (p RetryPolicy) bounded() bool {
	return p.MaxAttempts > 0
}

// backoff возвращает задержку перед попыткой attempt+1.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do вызывает op, пока тот возвращает ErrOptimisticConflict. Любая другая ошибка
// или nil завершает цикл сразу. onRetry вызывается перед каждым повтором.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, onRetry func(attempt int, delay time.Duration)) error {
	for attempt := 1; ; attempt++ {
		err := op(attempt)
		if err == nil || !errors.Is(err, domain.ErrOptimisticConflict) {
			return err
		}
		if p.bounded() && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", domain.ErrConflictRetriesExhausted, attempt)
		}

		delay := p.backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, delay)
		}
		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
