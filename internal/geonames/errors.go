package geonames

import (
	"context"
	"errors"
	"fmt"
)

// Kind：同步错误的两种归类
// 背景：调用方只需区分“主动取消”与“同步失败”，不关心失败发生在下载、解压还是解析阶段。
type Kind int

const (
	KindFailed Kind = iota
	KindCanceled
)

func (k Kind) String() string {
	if k == KindCanceled {
		return "canceled"
	}
	return "failed"
}

var (
	// ErrSyncFailed：非取消类失败的哨兵，配合 errors.Is 使用
	ErrSyncFailed = errors.New("geonames sync failed")
	// ErrCanceled：调用方取消的哨兵；同时保留 context.Canceled / DeadlineExceeded 原因链
	ErrCanceled = errors.New("geonames sync cancelled")
)

var opMessages = map[string]string{
	OpFull:          "failed to get db from geonames.org",
	OpModifications: "failed to get modifications from geonames.org",
	OpDeletions:     "failed to get deletes from geonames.org",
}

// Error：公开操作返回的唯一错误类型
// 约束：Op 为 full/modifications/deletions；Stage 为 download/extract/parse；Err 保留原始原因。
type Error struct {
	Op    string
	Stage string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	var msg string
	if e.Kind == KindCanceled {
		msg = "a task was cancelled: geonames " + e.Op
	} else if m, ok := opMessages[e.Op]; ok {
		msg = m
	} else {
		msg = "failed to sync " + e.Op + " from geonames.org"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", msg, e.Stage)
	}
	return fmt.Sprintf("%s (%s): %v", msg, e.Stage, e.Err)
}

// Unwrap：同时暴露归类哨兵与原因链，errors.Is 可命中任意一个
func (e *Error) Unwrap() []error {
	sentinel := ErrSyncFailed
	if e.Kind == KindCanceled {
		sentinel = ErrCanceled
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// IsCanceled：判断错误是否源自调用方取消
func IsCanceled(err error) bool { return errors.Is(err, ErrCanceled) }

// normalize：把任意阶段的错误归一为 *Error
// 约束：仅当调用方 ctx 已结束时归为取消；http.Client 自身超时等仍属同步失败。
func normalize(ctx context.Context, op, stage string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if cerr := ctx.Err(); cerr != nil {
		if !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		return &Error{Op: op, Stage: stage, Kind: KindCanceled, Err: err}
	}
	return &Error{Op: op, Stage: stage, Kind: KindFailed, Err: err}
}
