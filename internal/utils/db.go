package utils

import (
	"database/sql"
	"net/url"

	_ "github.com/lib/pq"
)

// BuildPostgresDSNFromEnv：由 PG_* 环境变量拼装 DSN
// 约束：密码经 URL 转义，避免特殊字符破坏 DSN 结构
func BuildPostgresDSNFromEnv() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   GetEnv("PG_HOST", "localhost") + ":" + GetEnv("PG_PORT", "5432"),
		Path:   "/" + GetEnv("PG_DB", "geonames"),
	}
	user := GetEnv("PG_USER", "postgres")
	if pass := GetEnv("PG_PASSWORD", ""); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", GetEnv("PG_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgresFromEnv：打开连接池；同步任务写入量很小，默认连接数远低于查询服务
func OpenPostgresFromEnv() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(GetEnvInt("PG_MAX_OPEN_CONNS", 4))
	db.SetMaxIdleConns(GetEnvInt("PG_MAX_IDLE_CONNS", 2))
	return db, nil
}
