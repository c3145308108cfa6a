// 包 middleware：守护进程状态端口（/metrics、/healthz）的入口中间件
package middleware

import (
	"net/http"
	"sync"
	"time"

	"geonames-sync/internal/logger"
	"geonames-sync/internal/utils"
)

// TokenBucket：令牌桶限流（每秒）
// 背景：状态端口可能被错误配置的抓取器高频轮询，限速后不影响同步协程。
// 约束：不做排队，超限直接返回 429；每个自然秒重置令牌。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimit：按 tb 限流；tb 为空时原样返回 next
func RateLimit(tb *TokenBucket, next http.Handler) http.Handler {
	if tb == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", r.RemoteAddr)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap：按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS（默认 50）包装状态端口
func Wrap(next http.Handler) http.Handler {
	if !utils.GetEnvBool("RATE_LIMIT_ENABLED", false) {
		return next
	}
	qps := utils.GetEnvInt("RATE_LIMIT_QPS", 50)
	if qps <= 0 {
		qps = 50
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return RateLimit(NewTokenBucket(qps), next)
}
