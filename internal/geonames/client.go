package geonames

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"geonames-sync/internal/logger"
	"geonames-sync/internal/metrics"
)

const (
	// DefaultBaseURL：GeoNames 导出仓库根路径
	DefaultBaseURL = "http://download.geonames.org/export/dump/"
	// SnapshotArchive / SnapshotEntry：全量快照压缩包及其内唯一的数据文件
	SnapshotArchive = "cities500.zip"
	SnapshotEntry   = "cities500.txt"
)

// 操作与阶段标签，用于错误、日志与指标
const (
	OpFull          = "full"
	OpModifications = "modifications"
	OpDeletions     = "deletions"

	StageDownload = "download"
	StageExtract  = "extract"
	StageParse    = "parse"
)

// ReferencePolicy：增量文件参考日的计算时机
type ReferencePolicy int

const (
	// ReferenceFixed：构造时计算一次“UTC 昨天”，客户端生命周期内不变
	ReferenceFixed ReferencePolicy = iota
	// ReferencePerCall：每次调用重新计算，适合跨日常驻的进程
	ReferencePerCall
)

// Client：GeoNames 同步客户端
// 背景：三个拉取操作相互独立、无共享可变状态，可并发调用；构造后只读。
// 约束：内部不做重试与超时调度，由调用方按需包装。
type Client struct {
	baseURL   string
	fetcher   Fetcher
	extractor Extractor
	policy    ParsePolicy
	refPolicy ReferencePolicy
	now       func() time.Time
	refDate   string
	log       *slog.Logger
}

type Option func(*Client)

// WithBaseURL：替换导出仓库根路径（镜像或测试服务器）
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithHTTPClient：注入共享 http.Client 以复用连接
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.fetcher = NewHTTPFetcher(hc) }
}

func WithFetcher(f Fetcher) Option { return func(c *Client) { c.fetcher = f } }
func WithExtractor(e Extractor) Option { return func(c *Client) { c.extractor = e } }
func WithParsePolicy(p ParsePolicy) Option { return func(c *Client) { c.policy = p } }

func WithReferencePolicy(p ReferencePolicy) Option {
	return func(c *Client) { c.refPolicy = p }
}

// WithClock：替换时间源，参考日据此计算
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient：构造客户端并固定参考日
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		extractor: ZipExtractor{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(nil)
	}
	if c.log == nil {
		c.log = logger.L()
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	c.refDate = ReferenceDate(c.now())
	return c
}

// ReferenceDate：给定时刻的“UTC 昨天”，格式 yyyy-MM-dd
func ReferenceDate(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(dateLayout)
}

// ModificationsFile / DeletionsFile：按参考日命名的增量文件
func ModificationsFile(date string) string { return "modifications-" + date + ".txt" }
func DeletionsFile(date string) string { return "deletes-" + date + ".txt" }

// ReferenceDate：当前生效的参考日
func (c *Client) ReferenceDate() string {
	if c.refPolicy == ReferencePerCall {
		return ReferenceDate(c.now())
	}
	return c.refDate
}

func (c *Client) SnapshotURL() string { return c.baseURL + SnapshotArchive }

func (c *Client) ModificationsURL() string {
	return c.baseURL + ModificationsFile(c.ReferenceDate())
}

func (c *Client) DeletionsURL() string {
	return c.baseURL + DeletionsFile(c.ReferenceDate())
}

// FetchFullSnapshot：下载 cities500.zip，取出 cities500.txt 并解析为地名记录
// 异常：取消返回 Kind=KindCanceled 的 *Error；其余失败（传输、缺少条目、严格模式下的异常行）为 KindFailed。
func (c *Client) FetchFullSnapshot(ctx context.Context) ([]PlaceRecord, error) {
	return fetch(ctx, c, OpFull, c.SnapshotURL(), unzipSnapshot(c.extractor), ParsePlaces)
}

// FetchModifications：下载参考日的 modifications 文本文件（未压缩）并解析
func (c *Client) FetchModifications(ctx context.Context) ([]PlaceRecord, error) {
	return fetch(ctx, c, OpModifications, c.ModificationsURL(), nil, ParsePlaces)
}

// FetchDeletions：下载参考日的 deletes 文本文件并解析为删除记录
func (c *Client) FetchDeletions(ctx context.Context) ([]DeletionRecord, error) {
	return fetch(ctx, c, OpDeletions, c.DeletionsURL(), nil, ParseDeletions)
}

func unzipSnapshot(x Extractor) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		files, err := x.Extract(data)
		if err != nil {
			return nil, err
		}
		entry, ok := files[SnapshotEntry]
		if !ok {
			return nil, fmt.Errorf("entry %s not found in %s", SnapshotEntry, SnapshotArchive)
		}
		return entry, nil
	}
}

// fetch：下载 -> 检查点 -> 可选解压 -> 解析，任一步失败统一归一为 *Error
func fetch[T any](
	ctx context.Context,
	c *Client,
	op, url string,
	unpack func([]byte) ([]byte, error),
	parse func([]byte, ParsePolicy) ([]T, ParseStats, error),
) ([]T, error) {
	t0 := time.Now()
	metrics.FetchRequestsTotal.WithLabelValues(op).Inc()
	c.log.Info("geonames_fetch_start", "op", op, "url", url)

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, c.fail(ctx, op, StageDownload, err)
	}
	metrics.DownloadBytesTotal.WithLabelValues(op).Add(float64(len(data)))
	c.log.Debug("geonames_download_ok", "op", op, "bytes", len(data))

	if err := ctx.Err(); err != nil {
		return nil, c.fail(ctx, op, StageParse, err)
	}
	if unpack != nil {
		if data, err = unpack(data); err != nil {
			return nil, c.fail(ctx, op, StageExtract, err)
		}
	}
	recs, stats, err := parse(data, c.policy)
	if err != nil {
		return nil, c.fail(ctx, op, StageParse, err)
	}

	dur := time.Since(t0).Milliseconds()
	metrics.FetchDurationMs.WithLabelValues(op).Observe(float64(dur))
	metrics.RecordsTotal.WithLabelValues(op).Add(float64(len(recs)))
	metrics.MalformedRowsTotal.WithLabelValues(op).Add(float64(stats.Malformed))
	if stats.Malformed > 0 {
		c.log.Warn("geonames_malformed_rows", "op", op, "malformed", stats.Malformed, "rows", stats.Rows)
	}
	c.log.Info("geonames_fetch_done", "op", op, "records", len(recs), "duration_ms", dur)
	return recs, nil
}

func (c *Client) fail(ctx context.Context, op, stage string, err error) error {
	e := normalize(ctx, op, stage, err)
	metrics.FetchFailTotal.WithLabelValues(op, e.Kind.String()).Inc()
	if e.Kind == KindCanceled {
		c.log.Warn("geonames_fetch_canceled", "op", op, "stage", stage)
	} else {
		c.log.Error("geonames_fetch_error", "op", op, "stage", stage, "err", err)
	}
	return e
}
