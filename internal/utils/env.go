// 包 utils：环境变量读取、数据库与 Redis 连接工具
package utils

import (
	"os"
	"strconv"
	"time"
)

// GetEnv：读取环境变量，未设置或为空时返回默认值
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt：解析失败静默回退到默认值
func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvBool：接受 strconv.ParseBool 支持的写法（1/t/true/0/f/false 等）
func GetEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetEnvDuration：接受 time.ParseDuration 格式，如 "90s"、"5m"
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
