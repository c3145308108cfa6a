// 包 migrate：首次运行自动创建同步日志表
package migrate

import (
	"context"
	"database/sql"

	"geonames-sync/internal/logger"
)

// EnsureSchema：创建同步运行日志所需的表与索引
// 约束：使用 IF NOT EXISTS，可重复执行；只维护同步元数据，不存放地名记录本身
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _geo_sync_runs (
            id BIGSERIAL PRIMARY KEY,
            op TEXT NOT NULL,
            ref_date DATE,
            url TEXT NOT NULL,
            status TEXT NOT NULL,
            records INT NOT NULL DEFAULT 0,
            error TEXT NOT NULL DEFAULT '',
            duration_ms BIGINT NOT NULL DEFAULT 0,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_geo_sync_runs_op_status ON _geo_sync_runs(op, status, started_at DESC)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
