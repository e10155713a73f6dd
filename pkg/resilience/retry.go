package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy はリトライの方針。
type RetryPolicy struct {
	// MaxAttempts は最初の試行を含む最大試行回数。
	MaxAttempts int
	// Backoff はattempt回目（1始まり）の失敗後に待つ時間を返す。
	Backoff func(attempt int) time.Duration
	// Retryable は失敗がリトライ対象か（一時的な失敗か）を判定する。nilの場合は全てリトライする。
	Retryable func(err error) bool
	// Sleep は待機処理。nilの場合はタイマーでctxのキャンセルを待ちながら待機する。
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExponentialJitter はinitial * 2^(attempt-1) をmaxDelayで頭打ちにし、±randomizationの割合で揺らしたバックオフを返す。
// 揺らした結果もmaxDelayを超えない。
func ExponentialJitter(initial, maxDelay time.Duration, randomization float64) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		b := &backoff.ExponentialBackOff{
			InitialInterval:     initial,
			RandomizationFactor: randomization,
			Multiplier:          2,
			MaxInterval:         maxDelay,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}
		b.Reset()
		var d time.Duration
		for range attempt {
			d = b.NextBackOff()
		}
		return min(d, maxDelay)
	}
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
