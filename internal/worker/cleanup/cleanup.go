// Package cleanup は長期間ログインのないユーザーの認証情報を削除するジョブを提供する。
// 保持期間（デフォルト180日）を超過した暗号化リフレッシュトークンを日次バッチで削除する。
// エッセイレコードとカード位置は削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CredentialPurger は最終ログインが指定時刻より古い認証情報を削除する。
// credential.Storeが実装する。
type CredentialPurger interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した認証情報の自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	store         CredentialPurger
	logger        *slog.Logger
	RetentionDays int // 認証情報の保持日数（デフォルト: 180）
	nowFn         func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合は180日とする。
func NewCleanupJob(store CredentialPurger, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 180
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		store:         store,
		logger:        logger,
		RetentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Run は最終ログインがRetentionDays日前より古い認証情報を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.nowFn().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.store.PurgeStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("認証情報クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("認証情報クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("認証情報クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
