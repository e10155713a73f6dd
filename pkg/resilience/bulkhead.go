package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Bulkhead は1つの依存先への同時呼び出し数を制限する。
// 上限に達した呼び出しは失敗せず、スロットが空くまで待つ。
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead は同時実行数の上限をlimitとするBulkheadを生成する。
func NewBulkhead(limit int) *Bulkhead {
	if limit <= 0 {
		limit = 1
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire はスロットを確保する。ctxがキャンセルされた場合はエラーを返す。
func (b *Bulkhead) Acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

// Release はスロットを返却する。
func (b *Bulkhead) Release() {
	b.sem.Release(1)
}
