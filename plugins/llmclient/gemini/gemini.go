package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"llmsrc/pkg/contract"
	"llmsrc/plugins/llmclient/upstream"
)

// Options: Gemini API 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // 为空使用 SDK 默认端点
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GEMINI_API_KEY，退化到 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 客户端超时（秒）。未设置或 <=0 时采用默认 60 秒。
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	MaxRetries     *int              `json:"max_retries,omitempty"`
	RetryBaseMS    int               `json:"retry_base_ms,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GEMINI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.Temperature == nil {
		t := 0.1
		o.Temperature = &t
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2000
	}
}

// generator 抽象 Models.GenerateContent，便于测试注入。
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	gen    generator
	model  string
	temp   float32
	maxOut int32
	policy upstream.Policy
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	hopts := genai.HTTPOptions{BaseURL: opts.BaseURL}
	if len(opts.ExtraHeaders) > 0 {
		hopts.Headers = http.Header{}
		for k, v := range opts.ExtraHeaders {
			if k != "" {
				hopts.Headers.Set(k, v)
			}
		}
	}
	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second},
		HTTPOptions: hopts,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newClient(gc.Models, opts), nil
}

func newClient(gen generator, opts Options) *Client {
	return &Client{
		gen:    gen,
		model:  opts.Model,
		temp:   float32(*opts.Temperature),
		maxOut: int32(opts.MaxTokens),
		policy: upstream.NewPolicy(opts.MaxRetries, opts.RetryBaseMS),
	}
}

// encodePrompt 将通用 Prompt 转为 Gemini 内容；system 角色并入 SystemInstruction。
// 其余角色：assistant→model，未知→user。
func encodePrompt(p contract.Prompt) (system string, contents []*genai.Content, err error) {
	switch v := p.(type) {
	case contract.TextPrompt:
		contents = genai.Text(string(v))
	case contract.ChatPrompt:
		var sys []string
		for _, m := range v {
			switch strings.ToLower(strings.TrimSpace(m.Role)) {
			case "system":
				sys = append(sys, m.Content)
			case "assistant", "model":
				contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
			default:
				contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
			}
		}
		system = strings.Join(sys, "\n\n")
	default:
		return "", nil, fmt.Errorf("gemini: %w: unsupported prompt %T", contract.ErrInvalidInput, p)
	}
	if len(contents) == 0 {
		return "", nil, fmt.Errorf("gemini: %w: empty prompt", contract.ErrInvalidInput)
	}
	return system, contents, nil
}

func (c *Client) Invoke(ctx context.Context, b contract.Block, p contract.Prompt) (contract.Raw, error) {
	system, contents, err := encodePrompt(p)
	if err != nil {
		return contract.Raw{}, err
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temp),
		MaxOutputTokens: c.maxOut,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	var out contract.Raw
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := c.gen.GenerateContent(ctx, c.model, contents, cfg)
		if err != nil {
			return mapError(ctx, err)
		}
		raw, err := decode(resp)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

func decode(resp *genai.GenerateContentResponse) (contract.Raw, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return contract.Raw{}, fmt.Errorf("gemini: no candidates: %w", contract.ErrResponseInvalid)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return contract.Raw{}, fmt.Errorf("gemini: output truncated (MAX_TOKENS): %w", contract.ErrResponseInvalid)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return contract.Raw{}, fmt.Errorf("gemini: empty content: %w", contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: text}, nil
}

// mapError 将 SDK 错误映射为 upstream.Error，以复用统一的状态码分类。
func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		return upstream.Error{Provider: "gemini", Status: ae.Code, Msg: ae.Message}
	}
	var pae *genai.APIError
	if errors.As(err, &pae) && pae != nil {
		return upstream.Error{Provider: "gemini", Status: pae.Code, Msg: pae.Message}
	}
	return err
}

var _ contract.LLMClient = (*Client)(nil)
