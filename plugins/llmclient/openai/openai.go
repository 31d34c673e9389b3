package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"llmsrc/pkg/contract"
	"llmsrc/plugins/llmclient/upstream"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认 gpt-4o
	APIKeyEnv      string   `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 单次请求超时（秒）
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"` // 输出上限；<=0 使用默认 2000
	// 客户端内部重试：nil 使用默认 2 次；0 关闭。
	MaxRetries  *int `json:"max_retries,omitempty"`
	RetryBaseMS int  `json:"retry_base_ms,omitempty"`
	// 第三方兼容（最小）：
	EndpointPath       string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`        // 追加/覆盖请求头（Azure/OpenRouter 等）
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4o"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 120
	}
	if o.Temperature == nil {
		t := 0.1
		o.Temperature = &t
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2000
	}
}

type Client struct {
	rc     *resty.Client
	url    string
	model  string
	temp   float64
	maxOut int
	policy upstream.Policy
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	rc := resty.New().
		SetTimeout(time.Duration(opts.TimeoutSeconds)*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if !opts.DisableDefaultAuth {
		rc.SetAuthToken(key)
	}
	for k, v := range opts.ExtraHeaders {
		if k != "" {
			rc.SetHeader(k, v)
		}
	}
	return &Client{
		rc:     rc,
		url:    fullURL,
		model:  opts.Model,
		temp:   *opts.Temperature,
		maxOut: opts.MaxTokens,
		policy: upstream.NewPolicy(opts.MaxRetries, opts.RetryBaseMS),
	}, nil
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaReq struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

func (c *Client) encodePrompt(p contract.Prompt) (oaReq, error) {
	req := oaReq{Model: c.model, Temperature: c.temp, MaxTokens: c.maxOut}
	switch v := p.(type) {
	case contract.TextPrompt:
		req.Messages = []oaMessage{{Role: "user", Content: string(v)}}
	case contract.ChatPrompt:
		req.Messages = make([]oaMessage, 0, len(v))
		for _, m := range v {
			req.Messages = append(req.Messages, oaMessage{Role: m.Role, Content: m.Content})
		}
	default:
		return oaReq{}, fmt.Errorf("openai: %w: unsupported prompt %T", contract.ErrInvalidInput, p)
	}
	if len(req.Messages) == 0 {
		return oaReq{}, fmt.Errorf("openai: %w: empty prompt", contract.ErrInvalidInput)
	}
	return req, nil
}

// Invoke: 单次调用（含客户端内部重试），同步返回。
func (c *Client) Invoke(ctx context.Context, b contract.Block, p contract.Prompt) (contract.Raw, error) {
	req, err := c.encodePrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	var out contract.Raw
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		raw, err := c.once(ctx, &req)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

func (c *Client) once(ctx context.Context, req *oaReq) (contract.Raw, error) {
	resp, err := c.rc.R().SetContext(ctx).SetBody(req).Post(c.url)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Raw{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return contract.Raw{}, upstream.Error{Provider: "openai", Status: http.StatusRequestTimeout, Msg: err.Error()}
		}
		return contract.Raw{}, err
	}
	body := resp.Body()
	if resp.StatusCode()/100 != 2 {
		return contract.Raw{}, upstream.Error{Provider: "openai", Status: resp.StatusCode(), Msg: errorMessage(body)}
	}
	if !gjson.ValidBytes(body) {
		return contract.Raw{}, fmt.Errorf("openai decode: %w", contract.ErrResponseInvalid)
	}
	choice := gjson.GetBytes(body, "choices.0")
	content := choice.Get("message.content")
	if !content.Exists() || strings.TrimSpace(content.String()) == "" {
		return contract.Raw{}, fmt.Errorf("openai: empty content: %w", contract.ErrResponseInvalid)
	}
	if fr := choice.Get("finish_reason").String(); fr == "length" {
		return contract.Raw{}, fmt.Errorf("openai: output truncated (finish_reason=length): %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: content.String()}, nil
}

// errorMessage 取 error.message，退化为截断的响应体。
func errorMessage(body []byte) string {
	if m := gjson.GetBytes(body, "error.message"); m.Exists() {
		return m.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 4<<10 {
		s = s[:4<<10]
	}
	return s
}

var _ contract.LLMClient = (*Client)(nil)
