package ratelimit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestRedisLimiter はRedis上のカウンタで上限を判定することを検証する。
func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	t.Run("上限を超えたリクエストが拒否されること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		lim := NewRedis(client, time.Minute)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if d := lim.Allow(ctx, "10.0.0.2", 3); !d.Allowed {
				t.Fatalf("%d回目のリクエストが拒否された", i+1)
			}
		}
		d := lim.Allow(ctx, "10.0.0.2", 3)
		if d.Allowed {
			t.Fatal("上限超過のリクエストが許可された")
		}
		if d.Count != 4 || d.Remaining != 0 {
			t.Errorf("Decision = %+v, want count=4 remaining=0", d)
		}
		if ttl := mr.TTL("ratelimit:10.0.0.2"); ttl <= 0 {
			t.Errorf("TTL = %v, want positive", ttl)
		}

		// ウィンドウ経過でキーが失効する
		mr.FastForward(time.Minute + time.Second)
		if d := lim.Allow(ctx, "10.0.0.2", 3); !d.Allowed {
			t.Error("ウィンドウ経過後のリクエストが拒否された")
		}
	})

	t.Run("Redisに接続できない場合はフォールバックで判定すること", func(t *testing.T) {
		t.Parallel()

		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 10 * time.Millisecond,
			MaxRetries:  -1,
		})
		t.Cleanup(func() { _ = client.Close() })

		var logs bytes.Buffer
		lim := NewRedis(client, time.Minute)
		lim.Logger = slog.New(slog.NewJSONHandler(&logs, nil))
		ctx := context.Background()

		if d := lim.Allow(ctx, "k", 1); !d.Allowed {
			t.Fatal("フォールバックの1回目が拒否された")
		}
		if d := lim.Allow(ctx, "k", 1); d.Allowed {
			t.Fatal("フォールバックで上限が適用されていない")
		}
		out := logs.String()
		if !strings.Contains(out, `"msg":"rate_limit_fallback"`) || !strings.Contains(out, `"level":"WARN"`) {
			t.Errorf("フォールバックの警告ログが構造化されていない: %s", out)
		}
		if !strings.Contains(out, `"key":"k"`) {
			t.Errorf("警告ログにキーが含まれていない: %s", out)
		}
	})

	t.Run("クライアント未設定でフォールバックもない場合は許可すること", func(t *testing.T) {
		t.Parallel()

		lim := &RedisLimiter{Window: time.Minute}
		if d := lim.Allow(context.Background(), "k", 1); !d.Allowed {
			t.Fatal("許可されるべきリクエストが拒否された")
		}
	})
}
