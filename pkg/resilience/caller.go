package resilience

import (
	"context"
	"fmt"
	"time"
)

// Caller は1種類のリモート呼び出しをブレーカー・バルクヘッド・リトライで保護する。
// 1つの依存先につき1つ生成し、プロセス内の全リクエストで共有する。
type Caller struct {
	breaker        *Breaker
	bulkhead       *Bulkhead
	policy         RetryPolicy
	attemptTimeout time.Duration
}

// NewCaller はCallerを生成する。attemptTimeoutは各試行に適用するタイムアウト（0なら適用しない）。
func NewCaller(breaker *Breaker, bulkhead *Bulkhead, policy RetryPolicy, attemptTimeout time.Duration) *Caller {
	return &Caller{
		breaker:        breaker,
		bulkhead:       bulkhead,
		policy:         policy,
		attemptTimeout: attemptTimeout,
	}
}

// Breaker は内部のサーキットブレーカーを返す。
func (c *Caller) Breaker() *Breaker {
	return c.breaker
}

// Do はfnを保護下で実行する。
//
// サーキットが開いていればErrCircuitOpen、リトライを使い切ればErrRemoteUnavailable、
// リトライ対象外の失敗はErrRemoteRejectedでラップして返す。
// 確定的な拒否はリモートが応答している証拠なのでブレーカーの失敗として数えない。
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		c.breaker.Release()
		return fmt.Errorf("%w: バルクヘッドの待機中に中断: %w", ErrRemoteUnavailable, err)
	}
	defer c.bulkhead.Release()

	var lastErr error
	attempts := 0
	maxAttempts := c.policy.maxAttempts()
	for attempts < maxAttempts {
		// スロット待ちやバックオフの間に他の呼び出しがサーキットを開いた場合はI/Oを行わない
		if c.breaker.IsOpen() {
			c.breaker.Release()
			if lastErr != nil {
				return fmt.Errorf("%w: %d回試行後に中止: %w", ErrCircuitOpen, attempts, lastErr)
			}
			return ErrCircuitOpen
		}
		attempts++
		err := c.attempt(ctx, fn)
		if err == nil {
			c.breaker.Success()
			return nil
		}
		lastErr = err

		if !c.policy.retryable(err) {
			c.breaker.Success()
			return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
		}
		if attempts == maxAttempts {
			break
		}
		if serr := c.policy.sleep(ctx, c.policy.backoff(attempts)); serr != nil {
			break
		}
	}

	c.breaker.Failure()
	return fmt.Errorf("%w: %d回試行して失敗: %w", ErrRemoteUnavailable, attempts, lastErr)
}

func (c *Caller) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.attemptTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	return fn(actx)
}
