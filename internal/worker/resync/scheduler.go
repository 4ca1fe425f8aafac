// Package resync はエッセイのメタ情報を定期的に再同期するバックグラウンドワーカーを提供する。
// 保存済みのリフレッシュトークンからアクセストークンを取得し、
// ユーザーごとに全エッセイのタイトル・更新日時・文字数を更新する。
package resync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/metrics"
)

// UserLister は同期対象のユーザーIDを列挙する。credential.Storeが実装する。
type UserLister interface {
	UserIDs(ctx context.Context) ([]string, error)
}

// TokenRefresher はユーザーのアクセストークンを取得する。auth.Serviceが実装する。
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, userID string) (string, error)
}

// Resyncer はユーザーのエッセイを再同期する。essay.CachedCatalogが実装する。
type Resyncer interface {
	Resync(ctx context.Context, userID string, provider docs.Provider) (int, error)
}

// Result は1サイクルの集計。
type Result struct {
	Users   int
	Skipped int
	Failed  int
	Essays  int
}

// Scheduler はユーザー単位の再同期を並列数を制限して実行する。
type Scheduler struct {
	users          UserLister
	tokens         TokenRefresher
	providers      docs.Factory
	catalog        Resyncer
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	backoff        *backoffTracker
	nowFn          func() time.Time
}

// NewScheduler はSchedulerを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	users UserLister,
	tokens TokenRefresher,
	providers docs.Factory,
	catalog Resyncer,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		users:          users,
		tokens:         tokens,
		providers:      providers,
		catalog:        catalog,
		metrics:        m,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		backoff:        newBackoffTracker(),
		nowFn:          time.Now,
	}
}

// Start はinterval間隔で再同期を実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("再同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は認証情報を持つ全ユーザーを1回再同期する。
// ユーザー単位の失敗はログに記録して他のユーザーの処理を続ける。
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()

	userIDs, err := s.users.UserIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(userIDs) == 0 {
		s.logger.Info("再同期対象のユーザーはいません")
		return Result{}, nil
	}

	var skipped, failed, essays atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for _, userID := range userIDs {
		if !s.backoff.ready(userID, s.nowFn()) {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			n, err := s.syncUser(gctx, userID)
			if err != nil {
				failed.Add(1)
				s.recordFailure(userID, err)
				return nil
			}
			s.backoff.success(userID)
			essays.Add(int64(n))
			return nil
		})
	}
	// goroutineはエラーを返さない
	_ = g.Wait()

	result := Result{
		Users:   len(userIDs),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
		Essays:  int(essays.Load()),
	}
	s.metrics.RecordEssaysSynced(result.Essays)

	s.logger.Info("再同期サイクルが完了しました",
		slog.Int("user_count", result.Users),
		slog.Int("skipped_count", result.Skipped),
		slog.Int("failed_count", result.Failed),
		slog.Int("essay_count", result.Essays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

func (s *Scheduler) syncUser(ctx context.Context, userID string) (int, error) {
	accessToken, err := s.tokens.RefreshAccessToken(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("refresh access token: %w", err)
	}
	provider, err := s.providers.ForAccessToken(ctx, accessToken)
	if err != nil {
		return 0, fmt.Errorf("build document provider: %w", err)
	}
	n, err := s.catalog.Resync(ctx, userID, provider)
	if err != nil {
		return 0, fmt.Errorf("resync essays: %w", err)
	}
	return n, nil
}

func (s *Scheduler) recordFailure(userID string, err error) {
	attrs := []any{
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	}
	if needsBackoff(err) {
		delay := s.backoff.failure(userID, s.nowFn())
		attrs = append(attrs, slog.Duration("backoff", delay))
	}
	s.logger.Warn("ユーザーの再同期に失敗しました", attrs...)
}
