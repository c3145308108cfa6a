// 同步守护进程：读取配置、初始化运行日志与租约，按日调度 GeoNames 增量同步，并在状态端口暴露指标
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"geonames-sync/internal/dumpcache"
	"geonames-sync/internal/geonames"
	"geonames-sync/internal/ingest"
	"geonames-sync/internal/logger"
	"geonames-sync/internal/metrics"
	"geonames-sync/internal/middleware"
	"geonames-sync/internal/migrate"
	"geonames-sync/internal/store"
	"geonames-sync/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &ingest.Runner{LockTTL: utils.GetEnvDuration("SYNC_LOCK_TTL", 23*time.Hour)}

	// 运行日志：数据库不可用时不阻断同步，仅缺少持久化记录
	if utils.GetEnvBool("SYNC_JOURNAL_ENABLED", true) {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		} else {
			l.Info("db_ping_ok")
			j := store.AttachDB(db)
			runner.Journal = j
			for _, op := range []string{geonames.OpFull, geonames.OpModifications, geonames.OpDeletions} {
				if last, err := j.LastSuccess(ctx, op); err != nil {
					l.Warn("journal_last_success_error", "op", op, "err", err)
				} else if last != nil {
					l.Info("journal_last_success", "op", op, "ref_date", last.RefDate, "records", last.Records, "started_at", last.StartedAt)
				}
			}
		}
	}

	if rc := utils.OpenRedisFromEnv(); rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			lk := ingest.NewRedisLocker(rc)
			l.Info("redis_ping_ok", "lock_owner", lk.Owner())
			runner.Locker = lk
		}
	}

	policy := geonames.ParseTolerant
	if utils.GetEnvBool("GEONAMES_PARSE_STRICT", false) {
		policy = geonames.ParseStrict
	}
	hc := &http.Client{Timeout: utils.GetEnvDuration("GEONAMES_HTTP_TIMEOUT", 5*time.Minute)}
	var fetcher geonames.Fetcher = geonames.NewHTTPFetcher(hc)
	if dir := utils.GetEnv("GEONAMES_CACHE_DIR", ""); dir != "" {
		fc, err := dumpcache.New(dir, fetcher)
		if err != nil {
			l.Error("dumpcache_init_error", "dir", dir, "err", err)
			os.Exit(1)
		}
		fc.SnapshotMaxAge = utils.GetEnvDuration("GEONAMES_CACHE_SNAPSHOT_MAX_AGE", 24*time.Hour)
		if keep := utils.GetEnvDuration("GEONAMES_CACHE_RETENTION", 0); keep > 0 {
			_, _ = fc.Purge(time.Now().Add(-keep))
		}
		fetcher = fc
	}
	client := geonames.NewClient(
		geonames.WithBaseURL(utils.GetEnv("GEONAMES_BASE_URL", geonames.DefaultBaseURL)),
		geonames.WithFetcher(fetcher),
		geonames.WithParsePolicy(policy),
		// 常驻进程会跨越 UTC 日界，参考日按调用重新计算
		geonames.WithReferencePolicy(geonames.ReferencePerCall),
	)
	runner.Source = client
	l.Info("geonames_client_ready", "base", utils.GetEnv("GEONAMES_BASE_URL", geonames.DefaultBaseURL), "ref_date", client.ReferenceDate())

	if utils.GetEnvBool("SYNC_FULL_ON_START", false) {
		go runner.RunFull(ctx)
	}
	if utils.GetEnvBool("SYNC_DAILY_ON_START", false) {
		go runner.RunDaily(ctx)
	}
	done := ingest.StartDailyUTC(ctx, runner, utils.GetEnvInt("SYNC_HOUR", 3))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("ok\n"))
	})
	addr := utils.GetEnv("ADDR", ":9090")
	s := &http.Server{Addr: addr, Handler: logger.AccessMiddleware(l)(middleware.Wrap(mux)), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		l.Info("listening", "addr", addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("listen_error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutdown_begin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.Shutdown(shutdownCtx)
	<-done
	l.Info("shutdown_done")
}
