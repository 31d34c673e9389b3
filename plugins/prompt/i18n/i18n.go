package i18n

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/afero"

	"llmsrc/pkg/contract"
)

// Options 为国际化改写 PromptBuilder 的配置。
type Options struct {
	// InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置默认模板）。
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	// MaxMappingEntries: 嵌入提示词的映射条目上限；<=0 使用默认 80。
	MaxMappingEntries int `json:"max_mapping_entries"`
	// Accessor / ContextAccessor: 模板变量，分别用于 Activity 内与其他类中的资源访问写法。
	Accessor        string `json:"accessor"`
	ContextAccessor string `json:"context_accessor"`
	// Language: 源码语言名（模板变量），默认 Java。
	Language string `json:"language"`
}

// Builder: 以 Block + Mapping 构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板在构造期解析并渲染。
type Builder struct {
	sys        string
	maxEntries int
	lang       string
}

type templateData struct {
	Accessor        string
	ContextAccessor string
	Language        string
}

const defaultMaxEntries = 80

// New 创建 PromptBuilder；fs 仅用于读取模板文件，为 nil 时使用操作系统文件系统。
func New(opts *Options, fs afero.Fs) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := afero.ReadFile(fs, o.SystemTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	data := templateData{
		Accessor:        or(o.Accessor, "getString(R.string.<key>)"),
		ContextAccessor: or(o.ContextAccessor, "context.getString(R.string.<key>)"),
		Language:        or(o.Language, "Java"),
	}
	var sys bytes.Buffer
	if err := tpl.Execute(&sys, data); err != nil {
		return nil, fmt.Errorf("system template render: %w", err)
	}
	n := o.MaxMappingEntries
	if n <= 0 {
		n = defaultMaxEntries
	}
	return &Builder{sys: strings.TrimSpace(sys.String()), maxEntries: n, lang: data.Language}, nil
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var _ contract.PromptBuilder = (*Builder)(nil)

// Build: system 为固定指令；user = 映射摘录 + 源码块。
func (b *Builder) Build(ctx context.Context, blk contract.Block, m contract.Mapping) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	text := blk.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt: %w: empty block %d", contract.ErrInvalidInput, blk.Index)
	}
	var uw bytes.Buffer
	uw.Grow(len(text) + 64*len(m.Excerpt(b.maxEntries)) + 128)
	b.writeFixedHead(&uw)
	for _, e := range m.Excerpt(b.maxEntries) {
		uw.WriteString(e.Key)
		uw.WriteString(contract.MappingLineSep)
		uw.WriteString(e.Text)
		uw.WriteByte('\n')
	}
	b.writeFixedMid(&uw)
	uw.WriteString(text)
	return contract.ChatPrompt([]contract.Message{
		{Role: "system", Content: b.sys},
		{Role: "user", Content: uw.String()},
	}), nil
}

func (b *Builder) writeFixedHead(w *bytes.Buffer) {
	w.WriteString(contract.MappingSectionHeader)
	w.WriteString("\nExcerpt of strings.xml (key => text):\n")
}

func (b *Builder) writeFixedMid(w *bytes.Buffer) {
	w.WriteString("\n")
	w.WriteString(contract.BlockSectionHeader)
	w.WriteString("\n")
	w.WriteString(b.lang)
	w.WriteString(" block to process:\n")
}

// EstimateOverheadTokens: system + user 固定部分（不含映射条目与源码）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	var fixed bytes.Buffer
	b.writeFixedHead(&fixed)
	b.writeFixedMid(&fixed)
	return estimate(b.sys) + estimate(fixed.String())
}

// 默认 system 模板。
const defaultSystemTemplate = `
You are an Android expert refactoring {{.Language}} code for internationalization.
You will receive one block of {{.Language}} code. Every user-visible string in it (setText, Toast, AlertDialog, etc.) already exists in the English strings.xml.
Replace each displayed string with a call to the matching resource:
 - inside an Activity: {{.Accessor}}
 - elsewhere (Adapter, Helper, ...): {{.ContextAccessor}}
Use exactly the key whose text matches the displayed string, according to the strings.xml excerpt provided.
Do not change anything else in the code. Reply with the modified code only, without explanation.
Never add ` + "```" + ` or ` + "```java" + ` or any other markup to your reply.
`
