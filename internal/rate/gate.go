package rate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"llmsrc/pkg/contract"
)

// LimitKey: 限流分组键（provider + 凭据摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限（输入+预期输出），0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 按分组的请求/令牌双维度闸门（并发安全）。
type Gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	lim Limits
	req *rate.Limiter // nil 表示该维度关闭
	tok *rate.Limiter
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now（仅影响 Try/Snapshot）。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		perSec := float64(lim.RPM) / 60.0
		e.req = rate.NewLimiter(rate.Limit(perSec), int(math.Max(1, math.Ceil(perSec))))
	}
	if lim.TPM > 0 {
		// 突发容量为一分钟额度，保证单个请求总能被满足
		e.tok = rate.NewLimiter(rate.Limit(float64(lim.TPM)/60.0), lim.TPM)
	}
	return e
}

// 未配置的 key 视为不限额。
func (g *Gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return fmt.Errorf("rate: %w: requests=%d tokens=%d", contract.ErrInvalidInput, a.Requests, a.Tokens)
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return fmt.Errorf("rate: %w: %d tokens > max_tokens_per_req %d", contract.ErrBudgetExceeded, a.Tokens, e.lim.MaxTokensPerReq)
	}
	if e.tok != nil && a.Tokens > e.tok.Burst() {
		return fmt.Errorf("rate: %w: %d tokens > tpm %d", contract.ErrBudgetExceeded, a.Tokens, e.tok.Burst())
	}
	return nil
}

// Try: 非阻塞尝试；任一维度不足时返回 false 且不消耗额度。
func (g *Gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if e.check(a) != nil {
		return false
	}
	now := g.clk()
	var rr *rate.Reservation
	if e.req != nil {
		rr = e.req.ReserveN(now, a.Requests)
		if !rr.OK() || rr.DelayFrom(now) > 0 {
			rr.CancelAt(now)
			return false
		}
	}
	if e.tok != nil && a.Tokens > 0 {
		tr := e.tok.ReserveN(now, a.Tokens)
		if !tr.OK() || tr.DelayFrom(now) > 0 {
			tr.CancelAt(now)
			if rr != nil {
				rr.CancelAt(now)
			}
			return false
		}
	}
	return true
}

// Wait: 阻塞直到额度可用或 ctx 取消；违反单请求上限时快速失败。
func (g *Gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if e.req != nil {
		if err := e.req.WaitN(ctx, a.Requests); err != nil {
			return waitErr(ctx, err)
		}
	}
	if e.tok != nil && a.Tokens > 0 {
		if err := e.tok.WaitN(ctx, a.Tokens); err != nil {
			return waitErr(ctx, err)
		}
	}
	return nil
}

// waitErr: 等待会越过 ctx 截止时间时按超时处理。
func waitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("rate: %v: %w", err, context.DeadlineExceeded)
}

// Snapshot: 返回当前可用请求/令牌的向下取整估值（仅诊断）。
func (g *Gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	if e.req != nil {
		rpmAvail = max(int(e.req.TokensAt(now)), 0)
	}
	if e.tok != nil {
		tpmAvail = max(int(e.tok.TokensAt(now)), 0)
	}
	return
}
