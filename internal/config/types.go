package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Source: 待处理的源文件；"-" 表示 STDIN。
	Source string `json:"source"`
	// Mapping: 资源映射文件（strings.xml 或 JSON）；为空表示不加载。
	Mapping string `json:"mapping"`
	// Session: 会话文件路径；为空时由 Source 推导。
	Session   string `json:"session"`
	BlockSize int    `json:"block_size"`
	// MaxTokens: 单次请求输入 token 预算；0 表示不检查。
	MaxTokens     int `json:"max_tokens"`
	BytesPerToken int `json:"bytes_per_token"`
	// PreviewBytes: 会话日志中响应预览的长度。
	PreviewBytes int     `json:"preview_bytes"`
	Logging      Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	Splitter      string `json:"splitter"`
	Segmenter     string `json:"segmenter"`
	Mapping       string `json:"mapping"`
	PromptBuilder string `json:"prompt_builder"`
	Sanitizer     string `json:"sanitizer"`
	Assembler     string `json:"assembler"`
	Writer        string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader,omitempty"`
	Splitter      json.RawMessage `json:"splitter,omitempty"`
	Segmenter     json.RawMessage `json:"segmenter,omitempty"`
	Mapping       json.RawMessage `json:"mapping,omitempty"`
	PromptBuilder json.RawMessage `json:"prompt_builder,omitempty"`
	Sanitizer     json.RawMessage `json:"sanitizer,omitempty"`
	Assembler     json.RawMessage `json:"assembler,omitempty"`
	Writer        json.RawMessage `json:"writer,omitempty"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options,omitempty"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}
