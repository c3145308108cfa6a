package ingest

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 仅删除自己持有的租约，避免误删其他实例在 TTL 过期后重新获取的键
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker：基于 SET NX PX 的跨实例租约
type RedisLocker struct {
	rc    *redis.Client
	owner string
}

// NewRedisLocker：owner 为 主机名:随机 UUID，容器内 pid 恒为 1，不能用作实例标识
func NewRedisLocker(rc *redis.Client) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{rc: rc, owner: host + ":" + uuid.NewString()}
}

func (l *RedisLocker) Owner() string { return l.owner }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rc.SetNX(ctx, key, l.owner, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.rc, []string{key}, l.owner).Err()
}
