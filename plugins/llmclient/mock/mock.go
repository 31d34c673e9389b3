package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"llmsrc/pkg/contract"
)

// Options: 离线调试配置（可选）。
type Options struct {
	// Mode: 响应模式（用于集成测试与无网络联调）。
	//  - "echo"（默认）：原样返回块文本；
	//  - "i18n"：按提示词中的映射摘录把 "text" 字面量替换为资源访问调用。
	Mode string `json:"mode,omitempty"`
	// Accessor: i18n 模式下的替换格式，%s 为资源键；默认 getString(R.string.%s)。
	Accessor string `json:"accessor,omitempty"`
	// Fence: 以 ```java 围栏包裹输出，模拟不守规矩的模型。
	Fence bool `json:"fence,omitempty"`
}

type Client struct {
	mode     string
	accessor string
	fence    bool
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	return NewClient(o)
}

// NewClient 以结构化选项构造；未知模式返回 ErrInvalidInput。
func NewClient(o Options) (*Client, error) {
	mode := strings.TrimSpace(o.Mode)
	switch mode {
	case "":
		mode = "echo"
	case "echo", "i18n":
	default:
		return nil, fmt.Errorf("mock: %w: unknown mode %q", contract.ErrInvalidInput, o.Mode)
	}
	acc := o.Accessor
	if acc == "" {
		acc = "getString(R.string.%s)"
	}
	return &Client{mode: mode, accessor: acc, fence: o.Fence}, nil
}

func (c *Client) Invoke(ctx context.Context, b contract.Block, p contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	text := b.Text()
	if c.mode == "i18n" {
		for _, e := range ParseMapping(p) {
			text = strings.ReplaceAll(text, `"`+e.Text+`"`, fmt.Sprintf(c.accessor, e.Key))
		}
	}
	if c.fence {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text = "```java\n" + text + "```"
	}
	return contract.Raw{Text: text}, nil
}

var mappingLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)` + regexp.QuoteMeta(contract.MappingLineSep) + `(.*)$`)

// ParseMapping 从提示词的映射段（MappingSectionHeader 与 BlockSectionHeader 之间）回放映射条目。
func ParseMapping(p contract.Prompt) []contract.MappingEntry {
	var content string
	switch v := p.(type) {
	case contract.TextPrompt:
		content = string(v)
	case contract.ChatPrompt:
		for _, m := range v {
			if m.Role == "user" {
				content = m.Content
			}
		}
	}
	var out []contract.MappingEntry
	in := false
	for _, ln := range strings.Split(content, "\n") {
		switch strings.TrimSpace(ln) {
		case contract.MappingSectionHeader:
			in = true
			continue
		case contract.BlockSectionHeader:
			return out
		}
		if !in {
			continue
		}
		if m := mappingLine.FindStringSubmatch(strings.TrimRight(ln, "\r")); m != nil && m[2] != "" {
			out = append(out, contract.MappingEntry{Key: m[1], Text: m[2]})
		}
	}
	return out
}

var _ contract.LLMClient = (*Client)(nil)
