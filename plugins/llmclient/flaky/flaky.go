package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"llmsrc/pkg/contract"
	"llmsrc/plugins/llmclient/mock"
	"llmsrc/plugins/llmclient/upstream"
)

// Options 定义可选项。
type Options struct {
	// FailAt: 在这些块序号上返回错误。
	FailAt []int `json:"fail_at"`
	// Error: 错误种类 unauthorized|rate_limited|invalid|upstream，默认 upstream（503）。
	Error string `json:"error,omitempty"`
	// Times: 每个失败块前若干次调用失败；<=0 表示始终失败。
	Times int `json:"times,omitempty"`
	// FenceAt: 这些块的成功响应带 ``` 围栏。
	FenceAt []int `json:"fence_at,omitempty"`
	// Mode: 成功时的回放模式，同 mock。
	Mode string `json:"mode,omitempty"`
}

// Client 是带状态的 LLM 实现：按块序号注入失败，其余委托给 mock 回放。
type Client struct {
	opts  Options
	err   error
	plain *mock.Client
	fence *mock.Client

	mu       sync.Mutex
	attempts map[int]int
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("flaky options: %w", err)
		}
	}
	ferr, err := errorFor(o.Error)
	if err != nil {
		return nil, err
	}
	plain, err := mock.NewClient(mock.Options{Mode: o.Mode})
	if err != nil {
		return nil, err
	}
	fenced, _ := mock.NewClient(mock.Options{Mode: o.Mode, Fence: true})
	return &Client{opts: o, err: ferr, plain: plain, fence: fenced, attempts: map[int]int{}}, nil
}

func errorFor(kind string) (error, error) {
	switch kind {
	case "unauthorized":
		return upstream.Error{Provider: "flaky", Status: http.StatusUnauthorized, Msg: "invalid api key"}, nil
	case "rate_limited":
		return upstream.Error{Provider: "flaky", Status: http.StatusTooManyRequests, Msg: "slow down"}, nil
	case "invalid":
		return fmt.Errorf("flaky: %w", contract.ErrResponseInvalid), nil
	case "", "upstream":
		return upstream.Error{Provider: "flaky", Status: http.StatusServiceUnavailable, Msg: "unavailable"}, nil
	default:
		return nil, fmt.Errorf("flaky: %w: unknown error kind %q", contract.ErrInvalidInput, kind)
	}
}

// Attempts 返回某块已被调用的次数。
func (c *Client) Attempts(block int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[block]
}

// Invoke 实现 contract.LLMClient。
func (c *Client) Invoke(ctx context.Context, b contract.Block, p contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	c.mu.Lock()
	c.attempts[b.Index]++
	n := c.attempts[b.Index]
	c.mu.Unlock()

	if slices.Contains(c.opts.FailAt, b.Index) && (c.opts.Times <= 0 || n <= c.opts.Times) {
		return contract.Raw{}, c.err
	}
	if slices.Contains(c.opts.FenceAt, b.Index) {
		return c.fence.Invoke(ctx, b, p)
	}
	return c.plain.Invoke(ctx, b, p)
}

var _ contract.LLMClient = (*Client)(nil)
