package geonames

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"geonames-sync/internal/logger"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// 2024-03-06 UTC 的任意时刻，参考日为 2024-03-05
var fixedNow = time.Date(2024, 3, 6, 0, 30, 0, 0, time.UTC)

const (
	rowParis  = "2988507\tParis\tParis\tLutece,Parigi,Paris\t48.85341\t2.3488\tP\tPPLC\tFR\t\t11\t75\t751\t75056\t2138551\t\t42\tEurope/Paris\t2024-01-15"
	rowBerlin = "2950159\tBerlin\tBerlin\tBerlino,Berlin\t52.52437\t13.41053\tP\tPPLC\tDE\t\t16\t00\t11000\t11000000\t3426354\t74\t43\tEurope/Berlin\t2023-11-02"
	rowOslo   = "3143244\tOslo\tOslo\t\t59.91273\t10.74609\tP\tPPLC\tNO\t\t12\t0301\t\t\t580000\t\t26\tEurope/Oslo\t2022-09-05"
)

func placeData(rows ...string) []byte {
	return []byte(strings.Join(rows, "\n") + "\n")
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, b := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// dumpServer：按路径返回固定内容的上游模拟；hits 统计请求数
type dumpServer struct {
	*httptest.Server
	hits  atomic.Int64
	files map[string][]byte
}

func newDumpServer(t *testing.T, files map[string][]byte) *dumpServer {
	t.Helper()
	ds := &dumpServer{files: files}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.hits.Add(1)
		b, ok := ds.files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(ds.Close)
	return ds
}

func newTestClient(baseURL string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(baseURL),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logger.New(io.Discard, "error", "text")),
	}
	return NewClient(append(base, opts...)...)
}
