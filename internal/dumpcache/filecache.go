// 包 dumpcache：GeoNames 导出文件的本地磁盘镜像，作为 geonames.Fetcher 的装饰器使用
package dumpcache

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"geonames-sync/internal/geonames"
	"geonames-sync/internal/logger"
)

// FileCache：按文件名缓存下载结果
// 背景：按日期命名的增量文件发布后不再变化，可长期复用；cities500.zip 每日重建，需配合 SnapshotMaxAge 过期。
// 约束：只缓存成功下载的完整内容；写入采用临时文件加重命名，避免并发读到半截文件。
type FileCache struct {
	dir            string
	next           geonames.Fetcher
	SnapshotMaxAge time.Duration
	now            func() time.Time
}

// New：dir 不存在时创建；next 为实际下载实现
func New(dir string, next geonames.Fetcher) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	logger.L().Debug("dumpcache_init", "dir", dir)
	return &FileCache{dir: dir, next: next, SnapshotMaxAge: 24 * time.Hour, now: time.Now}, nil
}

func (c *FileCache) Dir() string { return c.dir }

// Fetch：命中且未过期时直接读盘，否则下载并落盘
// 异常：落盘失败只记日志，仍返回已下载的内容
func (c *FileCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	name := path.Base(url)
	fp := filepath.Join(c.dir, name)
	if b, ok := c.load(fp, name); ok {
		logger.L().Debug("dumpcache_hit", "file", name, "bytes", len(b))
		return b, nil
	}
	b, err := c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.store(fp, b); err != nil {
		logger.L().Warn("dumpcache_store_error", "file", name, "err", err)
	} else {
		logger.L().Debug("dumpcache_stored", "file", name, "bytes", len(b))
	}
	return b, nil
}

func (c *FileCache) load(fp, name string) ([]byte, bool) {
	st, err := os.Stat(fp)
	if err != nil || st.IsDir() {
		return nil, false
	}
	if name == geonames.SnapshotArchive && c.SnapshotMaxAge > 0 && c.now().Sub(st.ModTime()) > c.SnapshotMaxAge {
		logger.L().Debug("dumpcache_expired", "file", name, "mtime", st.ModTime())
		return nil, false
	}
	b, err := os.ReadFile(fp)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *FileCache) store(fp string, b []byte) error {
	f, err := os.CreateTemp(c.dir, ".dl-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, fp); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Purge：删除 mtime 早于 before 的缓存文件，返回删除数量
func (c *FileCache) Purge(before time.Time) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			n++
		}
	}
	logger.L().Info("dumpcache_purged", "dir", c.dir, "removed", n)
	return n, nil
}
