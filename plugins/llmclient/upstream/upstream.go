// Package upstream 为模型服务客户端提供共用的错误分类与重试策略。
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"llmsrc/pkg/contract"
)

// Error 承载上游 HTTP 状态与简短消息，按状态码映射到契约哨兵错误：
//   - 401/403 → ErrUnauthorized
//   - 429 → ErrRateLimited
//   - 408/5xx → 网络类（实现 net.Error，可重试）
//   - 其他 4xx → ErrInvalidInput
type Error struct {
	Provider string
	Status   int
	Msg      string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.Msg)
}
func (e Error) Timeout() bool           { return e.Status == http.StatusRequestTimeout }
func (e Error) Temporary() bool         { return e.Status/100 == 5 }
func (e Error) UpstreamStatus() int     { return e.Status }
func (e Error) UpstreamMessage() string { return e.Msg }
func (e Error) Unwrap() error           { return sentinelFor(e.Status) }

func (e Error) transient() bool {
	return e.Timeout() || e.Temporary() || e.Status == http.StatusTooManyRequests
}

var (
	_ contract.UpstreamError = Error{}
	_ net.Error              = Error{}
)

func sentinelFor(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return contract.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case status == http.StatusRequestTimeout || status/100 == 5:
		return nil
	default:
		return contract.ErrInvalidInput
	}
}

// Policy: 客户端内部重试策略（指数退避，带上限）。
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

// DefaultPolicy: 2 次重试，500ms 起步，单次等待不超过 10s。
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Base: 500 * time.Millisecond, Cap: 10 * time.Second}
}

// NewPolicy 按选项覆盖默认值；maxRetries 为 nil 表示使用默认，baseMS<=0 使用默认。
func NewPolicy(maxRetries *int, baseMS int) Policy {
	p := DefaultPolicy()
	if maxRetries != nil && *maxRetries >= 0 {
		p.MaxRetries = *maxRetries
	}
	if baseMS > 0 {
		p.Base = time.Duration(baseMS) * time.Millisecond
	}
	return p
}

// Do 执行 fn；仅对瞬时错误（限流、408/5xx、非取消类网络错误）重试。
// 重试耗尽后返回最后一次的原始错误；ctx 取消时返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	b = retry.WithMaxRetries(uint64(max(p.MaxRetries, 0)), b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if Retryable(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Retryable 判定错误是否瞬时。
func Retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ue Error
	if errors.As(err, &ue) {
		return ue.transient()
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
