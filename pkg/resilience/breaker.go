package resilience

import (
	"sync"
	"time"
)

// State はサーキットブレーカーの状態。
type State int

const (
	// StateClosed は全ての呼び出しを通し、連続失敗を数える状態。
	StateClosed State = iota
	// StateOpen は呼び出しを即座に拒否する状態。
	StateOpen
	// StateHalfOpen はクールダウン後に1回だけ試行を許す状態。
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker は1つのリモート依存先に対するサーキットブレーカー。
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	trial     bool
	now       func() time.Time

	// OnStateChange は状態遷移時に呼ばれる。ロック保持中に呼ばれるため、ブレーカーを操作してはならない。
	OnStateChange func(from, to State)
}

// NewBreaker はthreshold回の連続失敗でOPENになり、cooldown経過後にHALF_OPENへ移るBreakerを生成する。
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock は時刻取得関数を差し替える。テスト用。
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// State は現在の状態を返す。クールダウンを過ぎたOPENはHALF_OPENとして報告する。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooldownElapsed() {
		return StateHalfOpen
	}
	return b.state
}

// IsOpen はクールダウン中のOPENであればtrueを返す。状態は変更しない。
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen && !b.cooldownElapsed()
}

// Allow は呼び出しを行ってよいかを判定する。
// HALF_OPENでは同時に1つの試行だけを許可し、それ以外はErrCircuitOpenを返す。
// Allowがnilを返した場合、呼び出し側は必ずSuccess・Failure・Releaseのいずれかを呼ぶ。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if !b.cooldownElapsed() {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.trial = true
		return nil
	default:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	}
}

// Success は呼び出しの成功を記録する。HALF_OPENの試行が成功するとCLOSEDに戻る。
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// Failure は呼び出しの失敗を記録する。
// CLOSEDでは連続失敗が閾値に達するとOPENになり、HALF_OPENの試行失敗はクールダウンをやり直す。
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	case StateOpen:
		// OPEN中に開始済みの呼び出しが失敗した場合もクールダウンを延長しない
	}
}

// Release は結果を記録せずに試行枠を返却する（呼び出し前にキャンセルされた場合など）。
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.failures = 0
	b.transition(StateOpen)
}

func (b *Breaker) cooldownElapsed() bool {
	return !b.now().Before(b.openedAt.Add(b.cooldown))
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(from, to)
	}
}
