package ingest

import (
	"context"
	"time"

	"geonames-sync/internal/logger"
)

// nextDailyAt：计算严格晚于 now 的下一个 UTC 整点 hour
// 约束：hour 超出 0-23 时按 24 取模
func nextDailyAt(now time.Time, hour int) time.Time {
	hour = ((hour % 24) + 24) % 24
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// StartDailyUTC：每天 UTC hour 点执行一次 RunDaily
// 背景：上游每日生成前一天的增量文件；失败只记录日志，等待下一轮调度，不做重试
// 约束：ctx 取消后停止调度；返回的通道在协程退出时关闭
func StartDailyUTC(ctx context.Context, r *Runner, hour int) <-chan struct{} {
	l := logger.L()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			next := nextDailyAt(r.now(), hour)
			l.Info("sync_scheduled", "next", next)
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				l.Info("sync_scheduler_stopped")
				return
			case <-t.C:
			}
			r.RunDaily(ctx)
		}
	}()
	return done
}
