// 包 ingest：在进程内编排 GeoNames 同步任务（全量/每日增量），记录运行日志并把记录交给下游消费者
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"geonames-sync/internal/geonames"
	"geonames-sync/internal/logger"
	"geonames-sync/internal/metrics"
	"geonames-sync/internal/store"
)

// Source：同步数据来源，*geonames.Client 即为默认实现
type Source interface {
	FetchFullSnapshot(ctx context.Context) ([]geonames.PlaceRecord, error)
	FetchModifications(ctx context.Context) ([]geonames.PlaceRecord, error)
	FetchDeletions(ctx context.Context) ([]geonames.DeletionRecord, error)
	ReferenceDate() string
	SnapshotURL() string
	ModificationsURL() string
	DeletionsURL() string
}

// Journal：运行日志写入端，*store.Journal 为默认实现
type Journal interface {
	RecordRun(ctx context.Context, r store.Run) error
}

// Locker：跨实例租约，防止多个守护进程对同一参考日重复同步
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Consumer：记录的下游处理方；如何合并进数据存储由宿主决定
type Consumer interface {
	Snapshot(ctx context.Context, recs []geonames.PlaceRecord) error
	Modifications(ctx context.Context, refDate string, recs []geonames.PlaceRecord) error
	Deletions(ctx context.Context, refDate string, recs []geonames.DeletionRecord) error
}

// LogConsumer：只记录数量的默认消费者
type LogConsumer struct{}

func (LogConsumer) Snapshot(ctx context.Context, recs []geonames.PlaceRecord) error {
	logger.L().Info("consume_snapshot", "records", len(recs))
	return nil
}

func (LogConsumer) Modifications(ctx context.Context, refDate string, recs []geonames.PlaceRecord) error {
	logger.L().Info("consume_modifications", "ref_date", refDate, "records", len(recs))
	return nil
}

func (LogConsumer) Deletions(ctx context.Context, refDate string, recs []geonames.DeletionRecord) error {
	logger.L().Info("consume_deletions", "ref_date", refDate, "records", len(recs))
	return nil
}

// ErrLocked：租约被其他实例持有，本次运行跳过
var ErrLocked = errors.New("sync lease held by another instance")

const defaultLockTTL = 23 * time.Hour

// Runner：同步编排器
// 约束：Journal、Locker 可为空（单实例、无数据库时）；Consumer 为空时使用 LogConsumer。
type Runner struct {
	Source   Source
	Journal  Journal
	Locker   Locker
	Consumer Consumer
	LockTTL  time.Duration
	Now      func() time.Time
}

// Result：一次运行的结果
type Result struct {
	Op      string
	RefDate string
	Status  string
	Records int
	Err     error
}

func (r *Runner) consumer() Consumer {
	if r.Consumer == nil {
		return LogConsumer{}
	}
	return r.Consumer
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// RunFull：拉取全量快照并交给消费者
// 约束：租约按当天（UTC）计，同一天内多实例只执行一次
func (r *Runner) RunFull(ctx context.Context) Result {
	day := r.now().UTC().Format("2006-01-02")
	return r.runOne(ctx, geonames.OpFull, "", day, r.Source.SnapshotURL(), func(ctx context.Context) (int, error) {
		recs, err := r.Source.FetchFullSnapshot(ctx)
		if err != nil {
			return 0, err
		}
		return len(recs), r.consumer().Snapshot(ctx, recs)
	})
}

// RunDaily：并发拉取同一参考日的 modifications 与 deletions
// 背景：两个文件互不依赖，客户端无共享可变状态，可安全并行；任一失败不影响另一个。
func (r *Runner) RunDaily(ctx context.Context) (mods, dels Result) {
	refDate := r.Source.ReferenceDate()
	logger.L().Info("sync_daily_start", "ref_date", refDate)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mods = r.runOne(ctx, geonames.OpModifications, refDate, refDate, r.Source.ModificationsURL(), func(ctx context.Context) (int, error) {
			recs, err := r.Source.FetchModifications(ctx)
			if err != nil {
				return 0, err
			}
			return len(recs), r.consumer().Modifications(ctx, refDate, recs)
		})
	}()
	go func() {
		defer wg.Done()
		dels = r.runOne(ctx, geonames.OpDeletions, refDate, refDate, r.Source.DeletionsURL(), func(ctx context.Context) (int, error) {
			recs, err := r.Source.FetchDeletions(ctx)
			if err != nil {
				return 0, err
			}
			return len(recs), r.consumer().Deletions(ctx, refDate, recs)
		})
	}()
	wg.Wait()
	logger.L().Info("sync_daily_done", "ref_date", refDate, "modifications", mods.Status, "deletions", dels.Status)
	return mods, dels
}

func (r *Runner) runOne(ctx context.Context, op, refDate, lockDate, url string, do func(context.Context) (int, error)) Result {
	l := logger.L()
	res := Result{Op: op, RefDate: refDate}
	key := "geonames:sync:" + op + ":" + lockDate
	locked := false
	if r.Locker != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = defaultLockTTL
		}
		ok, err := r.Locker.Acquire(ctx, key, ttl)
		switch {
		case err != nil:
			// NOTE: Redis 不可用时退化为单实例语义，继续执行
			l.Warn("sync_lock_error", "op", op, "key", key, "err", err)
		case !ok:
			l.Info("sync_skipped_locked", "op", op, "key", key)
			res.Status = store.StatusSkipped
			res.Err = ErrLocked
			metrics.SyncRunsTotal.WithLabelValues(op, res.Status).Inc()
			return res
		default:
			locked = true
		}
	}

	started := r.now()
	n, err := do(ctx)
	dur := r.now().Sub(started)
	res.Records = n
	res.Err = err
	res.Status = store.StatusOK
	if err != nil {
		res.Status = store.StatusError
		l.Error("sync_run_error", "op", op, "ref_date", refDate, "canceled", geonames.IsCanceled(err), "err", err)
		if locked {
			// 失败时释放租约，允许其他实例或下一次调度重试
			if rerr := r.Locker.Release(context.WithoutCancel(ctx), key); rerr != nil {
				l.Warn("sync_unlock_error", "op", op, "key", key, "err", rerr)
			}
		}
	} else {
		l.Info("sync_run_ok", "op", op, "ref_date", refDate, "records", n, "duration_ms", dur.Milliseconds())
	}
	metrics.SyncRunsTotal.WithLabelValues(op, res.Status).Inc()

	if r.Journal != nil {
		run := store.Run{
			Op:        op,
			RefDate:   refDate,
			URL:       url,
			Status:    res.Status,
			Records:   n,
			StartedAt: started,
			Duration:  dur,
		}
		if err != nil {
			run.Err = err.Error()
		}
		if jerr := r.Journal.RecordRun(context.WithoutCancel(ctx), run); jerr != nil {
			l.Error("sync_journal_error", "op", op, "err", jerr)
		}
	}
	return res
}
