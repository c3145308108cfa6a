// 包 metrics：同步链路的 Prometheus 指标，进程级注册，由守护进程在 /metrics 暴露
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_fetch_requests_total",
		Help: "Total number of geonames fetch operations",
	}, []string{"op"})
	FetchFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_fetch_fail_total",
		Help: "Total geonames fetch failures by kind (failed|canceled)",
	}, []string{"op", "kind"})
	FetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geonames_fetch_duration_ms",
		Help:    "Successful fetch duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"op"})
	DownloadBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_download_bytes_total",
		Help: "Total bytes downloaded from the dump repository",
	}, []string{"op"})
	RecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_records_total",
		Help: "Total records parsed",
	}, []string{"op"})
	MalformedRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_malformed_rows_total",
		Help: "Total rows with unreadable fields absorbed by tolerant parsing",
	}, []string{"op"})
	SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geonames_sync_runs_total",
		Help: "Scheduled sync runs by status (ok|error|skipped)",
	}, []string{"op", "status"})
)

func init() {
	prometheus.MustRegister(FetchRequestsTotal)
	prometheus.MustRegister(FetchFailTotal)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(MalformedRowsTotal)
	prometheus.MustRegister(SyncRunsTotal)
}

// Handler：返回 Prometheus 指标处理器，在守护进程的状态端口挂载
func Handler() http.Handler { return promhttp.Handler() }
