package utils

import (
	"geonames-sync/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedisFromEnv：从 REDIS_* 环境变量打开客户端
// 约束：REDIS_ENABLED=false 时返回 nil，调用方据此跳过跨实例租约；REDIS_DB 解析失败回退到 0
func OpenRedisFromEnv() *redis.Client {
	if !GetEnvBool("REDIS_ENABLED", true) {
		return nil
	}
	addr := GetEnv("REDIS_HOST", "127.0.0.1") + ":" + GetEnv("REDIS_PORT", "6379")
	db := GetEnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: GetEnv("REDIS_PASS", ""), DB: db})
}
