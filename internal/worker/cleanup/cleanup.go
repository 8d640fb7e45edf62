// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと、パスワード変更で資格情報バージョンが
// 古くなったセッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は無効になったセッションの自動削除ジョブ。
// 期限切れセッションは読み取り時にも無効扱いされるため、
// このジョブは行を物理削除するだけで認可判定には影響しない。冪等。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は無効なセッションを削除する。
// 削除対象は (1) expires_atが現在時刻より前のセッション、
// (2) アカウントの資格情報バージョンと一致しなくなったセッション。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredQuery := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, expiredQuery)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	expiredCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	staleQuery := `DELETE FROM sessions s
		USING accounts a
		WHERE s.identity_id = a.id
		  AND s.credential_version <> a.credential_version`
	result, err = j.db.ExecContext(ctx, staleQuery)
	if err != nil {
		j.logger.Error("資格情報バージョン不一致セッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("資格情報バージョン不一致セッションの削除に失敗: %w", err)
	}

	staleCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("expired_count", expiredCount),
		slog.Int64("stale_count", staleCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
