package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/event"
)

// MemoryLog はプロセス内メモリによる Log の実装。RedisLogと同じ配信意味論を持つ。
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memStream
	// notify は追記のたびに閉じて作り直し、ブロック中の読み手を起こす。
	notify chan struct{}
}

type memStream struct {
	seq     int64
	entries []event.Event
	groups  map[string]*memGroup
}

type memGroup struct {
	// next は次に配信するentriesのインデックス。
	next int
	// pending は未ACKのエントリIDと配信先コンシューマ。
	pending map[string]string
}

// NewMemoryLog はMemoryLogを生成する。
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		streams: make(map[string]*memStream),
		notify:  make(chan struct{}),
	}
}

func (l *MemoryLog) stream(name string) *memStream {
	s, ok := l.streams[name]
	if !ok {
		s = &memStream{groups: make(map[string]*memGroup)}
		l.streams[name] = s
	}
	return s
}

// Append はイベントを追記する。
func (l *MemoryLog) Append(_ context.Context, stream string, e *event.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream)
	s.seq++
	entry := *e
	entry.ID = fmt.Sprintf("%d-0", s.seq)
	s.entries = append(s.entries, entry)

	close(l.notify)
	l.notify = make(chan struct{})
	return entry.ID, nil
}

// EnsureGroup はグループを作成する。既に存在する場合は何もしない。
func (l *MemoryLog) EnsureGroup(_ context.Context, stream, group string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(stream)
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = &memGroup{pending: make(map[string]string)}
	}
	return nil
}

// Read はグループのエントリを取得する。
func (l *MemoryLog) Read(ctx context.Context, stream, group, consumer string, count int, block time.Duration, pending bool) ([]event.Event, error) {
	if count <= 0 {
		count = 1
	}
	var deadline <-chan time.Time
	if !pending && block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		l.mu.Lock()
		s, ok := l.streams[stream]
		if !ok {
			l.mu.Unlock()
			return nil, fmt.Errorf("NOGROUP: ストリーム %s が存在しません", stream)
		}
		g, ok := s.groups[group]
		if !ok {
			l.mu.Unlock()
			return nil, fmt.Errorf("NOGROUP: グループ %s が存在しません", group)
		}

		var out []event.Event
		if pending {
			for _, e := range s.entries[:g.next] {
				if len(out) == count {
					break
				}
				if g.pending[e.ID] == consumer {
					out = append(out, e)
				}
			}
			l.mu.Unlock()
			return out, nil
		}

		for g.next < len(s.entries) && len(out) < count {
			e := s.entries[g.next]
			g.next++
			g.pending[e.ID] = consumer
			out = append(out, e)
		}
		notify := l.notify
		l.mu.Unlock()

		if len(out) > 0 || deadline == nil {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-notify:
		}
	}
}

// Ack は保留リストからエントリを取り除く。
func (l *MemoryLog) Ack(_ context.Context, stream, group string, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streams[stream]
	if !ok {
		return nil
	}
	if g, ok := s.groups[group]; ok {
		for _, id := range ids {
			delete(g.pending, id)
		}
	}
	return nil
}

// Entries はストリームの全エントリを返す。
func (l *MemoryLog) Entries(stream string) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streams[stream]
	if !ok {
		return nil
	}
	out := make([]event.Event, len(s.entries))
	copy(out, s.entries)
	return out
}

// Pending はグループの未ACKエントリ数を返す。
func (l *MemoryLog) Pending(stream, group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streams[stream]
	if !ok {
		return 0
	}
	if g, ok := s.groups[group]; ok {
		return len(g.pending)
	}
	return 0
}
