package resync

import (
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/essaybinder/internal/auth"
	"github.com/hitoshi/essaybinder/internal/credential"
	"github.com/hitoshi/essaybinder/internal/docs"
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// needsBackoff はユーザー操作なしには回復しない失敗かどうかを判定する。
// リフレッシュトークンの失効・欠落・復号失敗とGoogle側の認証拒否が該当する。
func needsBackoff(err error) bool {
	return errors.Is(err, auth.ErrRefreshRejected) ||
		errors.Is(err, auth.ErrNoRefreshToken) ||
		errors.Is(err, credential.ErrIntegrity) ||
		errors.Is(err, docs.ErrUnauthorized)
}

type backoffState struct {
	failures    int
	nextAttempt time.Time
}

// backoffTracker はユーザーごとの同期バックオフ状態をメモリ上で管理する。
// プロセス再起動でリセットされる。
type backoffTracker struct {
	mu    sync.Mutex
	users map[string]*backoffState
}

func newBackoffTracker() *backoffTracker {
	return &backoffTracker{users: make(map[string]*backoffState)}
}

// ready はユーザーの同期を試行してよいかを返す。
func (b *backoffTracker) ready(userID string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.users[userID]
	return !ok || !now.Before(st.nextAttempt)
}

// failure は失敗を記録し、次回試行までの遅延を返す。
func (b *backoffTracker) failure(userID string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.users[userID]
	if !ok {
		st = &backoffState{}
		b.users[userID] = st
	}
	delay := CalculateBackoff(st.failures)
	st.failures++
	st.nextAttempt = now.Add(delay)
	return delay
}

// success はユーザーのバックオフ状態をリセットする。
func (b *backoffTracker) success(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.users, userID)
}
