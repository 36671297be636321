// Package cleanup は期限切れのメール確認トークンを定期的に削除するジョブを提供する。
// トークンをPostgreSQLに保存する構成でのみ使用する（RedisはTTLで自然に消える）。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔のデフォルト値。
const DefaultInterval = time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TokenCleanupJob は期限切れの確認トークンを削除する。
type TokenCleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。
func NewTokenCleanupJob(db Executor, logger *slog.Logger) *TokenCleanupJob {
	return &TokenCleanupJob{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Run は期限切れのトークンを削除する。
// 削除対象がない場合もエラーにならない。
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM email_confirmation_tokens WHERE expires_at <= $1`,
		j.now(),
	)
	if err != nil {
		j.logger.Error("確認トークンのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("確認トークンのクリーンアップに失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("確認トークンのクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに残して次回に持ち越す。
func (j *TokenCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
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
