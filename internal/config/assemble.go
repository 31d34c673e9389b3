package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"llmsrc/internal/pipeline"
	"llmsrc/internal/rate"
	"llmsrc/pkg/contract"
	"llmsrc/pkg/registry"
)

// defaultMaxOutputTokens 与远端客户端的默认输出上限一致。
const defaultMaxOutputTokens = 2000

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: config: %s", contract.ErrInvalidInput, fmt.Sprintf(format, a...))
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Source) == "" {
		return invalid("source empty")
	}
	if cfg.BlockSize < 1 {
		return invalid("block_size must be >= 1, got %d", cfg.BlockSize)
	}
	if cfg.MaxTokens < 0 {
		return invalid("max_tokens must be >= 0")
	}
	if cfg.BytesPerToken < 0 || cfg.PreviewBytes < 0 {
		return invalid("bytes_per_token/preview_bytes must be >= 0")
	}
	if cfg.LLM == "" {
		return invalid("llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return invalid("provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return invalid("provider %q missing client", cfg.LLM)
	}
	if prov.Limits.RPM < 0 || prov.Limits.TPM < 0 || prov.Limits.MaxTokensPerReq < 0 {
		return invalid("provider %q limits must be >= 0", cfg.LLM)
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.MaxTokens > prov.Limits.MaxTokensPerReq {
		return invalid("max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", cfg.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	d := Defaults().Components
	c := cfg.Components
	for _, chk := range []struct {
		kind, name string
		ok         bool
	}{
		{"reader", effName(c.Reader, d.Reader), registry.Reader[effName(c.Reader, d.Reader)] != nil},
		{"splitter", effName(c.Splitter, d.Splitter), registry.Splitter[effName(c.Splitter, d.Splitter)] != nil},
		{"segmenter", effName(c.Segmenter, d.Segmenter), registry.Segmenter[effName(c.Segmenter, d.Segmenter)] != nil},
		{"mapping", effName(c.Mapping, d.Mapping), registry.MappingLoader[effName(c.Mapping, d.Mapping)] != nil},
		{"prompt_builder", effName(c.PromptBuilder, d.PromptBuilder), registry.PromptBuilder[effName(c.PromptBuilder, d.PromptBuilder)] != nil},
		{"sanitizer", effName(c.Sanitizer, d.Sanitizer), registry.Sanitizer[effName(c.Sanitizer, d.Sanitizer)] != nil},
		{"assembler", effName(c.Assembler, d.Assembler), registry.Assembler[effName(c.Assembler, d.Assembler)] != nil},
		{"writer", effName(c.Writer, d.Writer), registry.Writer[effName(c.Writer, d.Writer)] != nil},
		{"llm client", prov.Client, registry.LLMClient[prov.Client] != nil},
	} {
		if !chk.ok {
			return invalid("%s %q not registered", chk.kind, chk.name)
		}
	}
	return nil
}

// Offline 构造渲染/导出所需的组件（不含 LLM，不要求 provider 配置）。
func Offline(cfg Config, fs afero.Fs) (pipeline.Components, error) {
	d := Defaults().Components
	c := cfg.Components
	var comp pipeline.Components
	var err error
	if comp.Reader, err = build("reader", effName(c.Reader, d.Reader), registry.Reader, func(f registry.NewReader) (contract.Reader, error) {
		return f(cfg.Options.Reader, fs)
	}); err != nil {
		return comp, err
	}
	if comp.Splitter, err = build("splitter", effName(c.Splitter, d.Splitter), registry.Splitter, func(f registry.NewSplitter) (contract.Splitter, error) {
		return f(cfg.Options.Splitter)
	}); err != nil {
		return comp, err
	}
	if comp.Segmenter, err = build("segmenter", effName(c.Segmenter, d.Segmenter), registry.Segmenter, func(f registry.NewSegmenter) (contract.Segmenter, error) {
		return f(cfg.Options.Segmenter)
	}); err != nil {
		return comp, err
	}
	if comp.MappingLoader, err = build("mapping", effName(c.Mapping, d.Mapping), registry.MappingLoader, func(f registry.NewMappingLoader) (contract.MappingLoader, error) {
		return f(cfg.Options.Mapping)
	}); err != nil {
		return comp, err
	}
	if comp.PromptBuilder, err = build("prompt_builder", effName(c.PromptBuilder, d.PromptBuilder), registry.PromptBuilder, func(f registry.NewPromptBuilder) (contract.PromptBuilder, error) {
		return f(cfg.Options.PromptBuilder, fs)
	}); err != nil {
		return comp, err
	}
	if comp.Sanitizer, err = build("sanitizer", effName(c.Sanitizer, d.Sanitizer), registry.Sanitizer, func(f registry.NewSanitizer) (contract.Sanitizer, error) {
		return f(cfg.Options.Sanitizer)
	}); err != nil {
		return comp, err
	}
	if comp.Assembler, err = build("assembler", effName(c.Assembler, d.Assembler), registry.Assembler, func(f registry.NewAssembler) (contract.Assembler, error) {
		return f(cfg.Options.Assembler)
	}); err != nil {
		return comp, err
	}
	if comp.Writer, err = build("writer", effName(c.Writer, d.Writer), registry.Writer, func(f registry.NewWriter) (contract.Writer, error) {
		return f(cfg.Options.Writer, fs)
	}); err != nil {
		return comp, err
	}
	return comp, nil
}

func build[F any, T any](kind, name string, reg map[string]F, mk func(F) (T, error)) (T, error) {
	f, ok := reg[name]
	if !ok {
		var zero T
		return zero, invalid("%s %q not registered", kind, name)
	}
	v, err := mk(f)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", kind, name, err)
	}
	return v, nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config, fs afero.Fs) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp, err := Offline(cfg, fs)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	prov := cfg.Provider[cfg.LLM]
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("llm %q: %w", cfg.LLM, err)
	}
	comp.LLM = llm

	// 分组键从 options 中派生 API Key；失败则退化为 provider 名称。
	key, derr := rate.DeriveKey(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	set := pipeline.Settings{
		Source:          cfg.Source,
		Mapping:         cfg.Mapping,
		BlockSize:       cfg.BlockSize,
		MaxTokens:       cfg.MaxTokens,
		BytesPerToken:   cfg.BytesPerToken,
		MaxOutputTokens: MaxOutputTokens(prov),
		Gate:            gate,
		GateKey:         key,
		PreviewBytes:    cfg.PreviewBytes,
	}
	return comp, set, nil
}

// MaxOutputTokens 读取 provider options 中的 max_tokens（输出上限）；缺省为 2000。
func MaxOutputTokens(p Provider) int {
	if n := gjson.GetBytes(p.Options, "max_tokens").Int(); n > 0 {
		return int(n)
	}
	return defaultMaxOutputTokens
}

// Summary 返回用于 debug 日志的有效配置摘要（不含密钥）。
func Summary(cfg Config) map[string]string {
	kv := map[string]string{
		"source":         cfg.Source,
		"mapping":        cfg.Mapping,
		"session":        SessionPath(cfg),
		"block_size":     strconv.Itoa(cfg.BlockSize),
		"max_tokens":     strconv.Itoa(cfg.MaxTokens),
		"llm":            cfg.LLM,
		"segmenter":      cfg.Components.Segmenter,
		"prompt_builder": cfg.Components.PromptBuilder,
		"assembler":      cfg.Components.Assembler,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		for _, k := range []string{"base_url", "model", "endpoint_path", "mode"} {
			if v := gjson.GetBytes(p.Options, k).String(); v != "" {
				kv[k] = v
			}
		}
	}
	return kv
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
