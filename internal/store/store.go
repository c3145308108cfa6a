// 包 store：同步运行日志的 PostgreSQL 访问层
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"geonames-sync/internal/logger"

	_ "github.com/lib/pq"
)

// 运行状态
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Run：一次同步运行的记录
// 约束：RefDate 为 yyyy-MM-dd，全量快照为空（入库为 NULL）
type Run struct {
	Op        string
	RefDate   string
	URL       string
	Status    string
	Records   int
	Err       string
	StartedAt time.Time
	Duration  time.Duration
}

// Journal：同步运行日志，持有连接池
type Journal struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Journal { return &Journal{db: db} }

// RecordRun：追加一条运行记录
func (j *Journal) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO _geo_sync_runs(op, ref_date, url, status, records, error, duration_ms, started_at)
        VALUES($1, NULLIF($2, '')::date, $3, $4, $5, $6, $7, $8)`,
		r.Op, r.RefDate, r.URL, r.Status, r.Records, r.Err, r.Duration.Milliseconds(), r.StartedAt,
	)
	if err != nil {
		logger.L().Error("journal_insert_error", "op", r.Op, "err", err)
		return err
	}
	logger.L().Debug("journal_insert_ok", "op", r.Op, "status", r.Status, "records", r.Records)
	return nil
}

// LastSuccess：查询某操作最近一次成功运行；没有记录时返回 nil, nil
func (j *Journal) LastSuccess(ctx context.Context, op string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT op, COALESCE(to_char(ref_date, 'YYYY-MM-DD'), ''), url, status, records, error, duration_ms, started_at
        FROM _geo_sync_runs
        WHERE op=$1 AND status=$2
        ORDER BY started_at DESC
        LIMIT 1`, op, StatusOK)
	var r Run
	var ms int64
	err := row.Scan(&r.Op, &r.RefDate, &r.URL, &r.Status, &r.Records, &r.Err, &ms, &r.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(ms) * time.Millisecond
	return &r, nil
}
