package geonames

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher：按 URL 拉取完整字节内容
// 背景：下载策略可替换；默认实现整体缓冲到内存（数据量为个位数 MB），大文件场景可换成落盘或流式实现。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const defaultUserAgent = "geonames-sync/1.0"

// HTTPFetcher：基于 net/http 的默认下载实现
// 约束：单次 GET，不重试；Client 可由调用方共享以复用连接。
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPFetcher：client 为空时使用 5 分钟超时的独立客户端
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPFetcher{Client: client, UserAgent: defaultUserAgent}
}

// StatusError：上游返回非 2xx 状态
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad response status code %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Fetch：下载并缓冲响应体
// 约束：发起请求前与拷贝响应体期间都会检查 ctx；返回的切片归调用方独占。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, &ctxReader{ctx: ctx, r: resp.Body}); err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}
	return buf.Bytes(), nil
}

// ctxReader：每次 Read 前检查取消，保证拷贝阶段可被打断
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
