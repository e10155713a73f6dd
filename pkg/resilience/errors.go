package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable はリトライを使い切った、またはサーキットが開いていることを示す。
	// 呼び出し側はローカルの補償処理で吸収する想定。
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrCircuitOpen はサーキットが開いているため呼び出しを行わなかったことを示す。
	// errors.Is(err, ErrRemoteUnavailable) も真になる。
	ErrCircuitOpen = fmt.Errorf("circuit open: %w", ErrRemoteUnavailable)
	// ErrRemoteRejected はリモートが確定的な拒否（4xx）を返したことを示す。リトライしない。
	ErrRemoteRejected = errors.New("remote rejected")
)
