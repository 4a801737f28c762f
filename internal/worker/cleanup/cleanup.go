// Package cleanup は検証されずに放置されたアカウントの定期削除ジョブを提供する。
// 検証コードの有効期限から保持期間（デフォルト7日）を過ぎても未検証のアカウントを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention は期限切れ後に未検証アカウントを残しておく期間。
const DefaultRetention = 7 * 24 * time.Hour

// DefaultInterval はRunEveryに0以下の間隔が渡された場合の実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PendingAccountCleanupJob は期限切れの未検証アカウントを削除するジョブ。
// 検証済みアカウントは対象にならない。
type PendingAccountCleanupJob struct {
	db        Executor
	logger    *slog.Logger
	Retention time.Duration
	now       func() time.Time
}

// NewPendingAccountCleanupJob は新しいPendingAccountCleanupJobを生成する。
// retentionが0以下の場合はDefaultRetentionを使う。
func NewPendingAccountCleanupJob(db Executor, logger *slog.Logger, retention time.Duration) *PendingAccountCleanupJob {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PendingAccountCleanupJob{
		db:        db,
		logger:    logger,
		Retention: retention,
		now:       time.Now,
	}
}

const deletePendingQuery = `DELETE FROM users
WHERE enabled = false
  AND verification_expires_at IS NOT NULL
  AND verification_expires_at < $1`

// Run は削除対象のアカウントを削除する。
// 削除対象がない場合もエラーにはならない。
func (j *PendingAccountCleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	result, err := j.db.ExecContext(ctx, deletePendingQuery, cutoff)
	if err != nil {
		j.logger.Error("pending account cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("failed to delete pending accounts: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get deleted count",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("pending account cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// RunEvery はRunを起動時に1回実行し、以降intervalごとに実行する。
// ctxがキャンセルされると戻る。個々の実行エラーはログに記録して継続する。
func (j *PendingAccountCleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.logger.Warn("non-positive cleanup interval, using default",
			slog.Duration("interval", interval),
			slog.Duration("default_interval", DefaultInterval),
		)
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
