// 单次拉取工具：按 GEONAMES_KIND 拉取全量或增量文件，以 JSON Lines 输出到标准输出，便于排查上游数据
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"geonames-sync/internal/dumpcache"
	"geonames-sync/internal/geonames"
	"geonames-sync/internal/logger"
	"geonames-sync/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := geonames.ParseTolerant
	if utils.GetEnvBool("GEONAMES_PARSE_STRICT", false) {
		policy = geonames.ParseStrict
	}
	opts := []geonames.Option{
		geonames.WithBaseURL(utils.GetEnv("GEONAMES_BASE_URL", geonames.DefaultBaseURL)),
		geonames.WithParsePolicy(policy),
	}
	if dir := utils.GetEnv("GEONAMES_CACHE_DIR", ""); dir != "" {
		fc, err := dumpcache.New(dir, geonames.NewHTTPFetcher(nil))
		if err != nil {
			l.Error("dumpcache_init_error", "dir", dir, "err", err)
			os.Exit(1)
		}
		opts = append(opts, geonames.WithFetcher(fc))
	}
	c := geonames.NewClient(opts...)

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	kind := utils.GetEnv("GEONAMES_KIND", geonames.OpModifications)
	var err error
	n := 0
	switch kind {
	case geonames.OpFull:
		var recs []geonames.PlaceRecord
		if recs, err = c.FetchFullSnapshot(ctx); err == nil {
			for _, r := range recs {
				_ = enc.Encode(r)
			}
			n = len(recs)
		}
	case geonames.OpModifications:
		var recs []geonames.PlaceRecord
		if recs, err = c.FetchModifications(ctx); err == nil {
			for _, r := range recs {
				_ = enc.Encode(r)
			}
			n = len(recs)
		}
	case geonames.OpDeletions:
		var recs []geonames.DeletionRecord
		if recs, err = c.FetchDeletions(ctx); err == nil {
			for _, r := range recs {
				_ = enc.Encode(r)
			}
			n = len(recs)
		}
	default:
		l.Error("unknown_kind", "kind", kind)
		os.Exit(2)
	}
	if err != nil {
		l.Error("fetch_error", "kind", kind, "canceled", geonames.IsCanceled(err), "err", err)
		out.Flush()
		os.Exit(1)
	}
	l.Info("fetch_done", "kind", kind, "records", n, "ref_date", c.ReferenceDate())
}
