package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited はウィンドウ内のリクエスト数が上限を超えたことを示す。
var ErrRateLimited = errors.New("rate limited")

// Decision は1リクエストに対する判定結果。
type Decision struct {
	// Allowed はリクエストを通してよいかどうか。
	Allowed bool
	// Count は現在のウィンドウ内のリクエスト数（今回を含む）。
	Count int
	// Limit はウィンドウあたりの上限。
	Limit int
	// Remaining はウィンドウ内で残りの許可数。
	Remaining int
	// ResetAt はカウンタがリセットされる時刻。
	ResetAt time.Time
}

// Err は拒否された場合にErrRateLimitedを返す。
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// RetryAfter は次に許可されるまでの待ち時間を返す。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter はキーごとのリクエスト数を制限する。
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

// New はstrategy（"fixed" / "sliding"）に応じたインメモリのLimiterを返す。
func New(strategy string, window time.Duration) Limiter {
	if strategy == "sliding" {
		return NewSlidingWindow(window)
	}
	return NewFixedWindow(window)
}

// FixedWindow は固定ウィンドウのカウンタ。
// キーごとに最初のリクエスト時にウィンドウを開始し、ウィンドウ経過後にリセットする。
type FixedWindow struct {
	mu        sync.Mutex
	window    time.Duration
	items     map[string]fixedEntry
	now       func() time.Time
	lastSweep time.Time
}

type fixedEntry struct {
	count   int
	resetAt time.Time
}

// NewFixedWindow はFixedWindowを生成する。windowが0以下の場合は1分とする。
func NewFixedWindow(window time.Duration) *FixedWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{
		window: window,
		items:  make(map[string]fixedEntry),
		now:    time.Now,
	}
}

// WithClock は時刻取得関数を差し替える。テスト用。
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.now = now
	return l
}

// Allow はkeyのカウンタを1つ進め、上限以内かを判定する。
func (l *FixedWindow) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	curr, ok := l.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = fixedEntry{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.items[key] = curr

	return decide(curr.count, limit, curr.resetAt)
}

// sweep は期限切れのエントリを削除する。ウィンドウ幅ごとに1回だけ走査する。
func (l *FixedWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}

// SlidingWindow は直近window内のリクエスト時刻を記録するスライディングウィンドウ。
// 拒否されたリクエストは記録しない。
type SlidingWindow struct {
	mu        sync.Mutex
	window    time.Duration
	hits      map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// NewSlidingWindow はSlidingWindowを生成する。windowが0以下の場合は1分とする。
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// WithClock は時刻取得関数を差し替える。テスト用。
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// Allow は直近window内のリクエスト数が上限未満であれば記録して許可する。
func (l *SlidingWindow) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now, cutoff)

	hits := trim(l.hits[key], cutoff)
	if len(hits) >= limit {
		l.hits[key] = hits
		return Decision{
			Allowed:   false,
			Count:     len(hits) + 1,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   hits[0].Add(l.window),
		}
	}

	hits = append(hits, now)
	l.hits[key] = hits
	return decide(len(hits), limit, hits[0].Add(l.window))
}

func (l *SlidingWindow) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, v := range l.hits {
		if v = trim(v, cutoff); len(v) == 0 {
			delete(l.hits, k)
		} else {
			l.hits[k] = v
		}
	}
}

// trim はcutoff以前の時刻を取り除く。hitsは昇順。
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
