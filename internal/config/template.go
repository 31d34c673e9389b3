package config

import (
	"encoding/json"
	"strings"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 使用 mock LLM 与合理限额，Writer 输出到 ./out 目录，选项给出中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Source:       "src/MainActivity.java",
		Mapping:      "res/values/strings.xml",
		BlockSize:    d.BlockSize,
		MaxTokens:    8000,
		PreviewBytes: d.PreviewBytes,
		Logging:      d.Logging,
		Components:   d.Components,
		LLM:          "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"mode":"i18n","accessor":"","fence":false}`),
				Limits:  Limits{RPM: 600, TPM: 200000, MaxTokensPerReq: 16000},
			},
			"openai": {
				Client: "openai",
				Options: json.RawMessage(`{
  "base_url": "https://api.openai.com/v1",
  "model": "gpt-4o",
  "api_key_env": "OPENAI_API_KEY",
  "timeout_seconds": 120,
  "temperature": 0.1,
  "max_tokens": 2000,
  "max_retries": 2,
  "endpoint_path": "",
  "disable_default_auth": false,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 60, TPM: 90000, MaxTokensPerReq: 16000},
			},
			"gemini": {
				Client: "gemini",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "gemini-2.5-flash",
  "api_key_env": "GEMINI_API_KEY",
  "timeout_seconds": 60,
  "temperature": 0.1,
  "max_tokens": 2000,
  "max_retries": 2,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 15, TPM: 250000, MaxTokensPerReq: 16000},
			},
		},
	}
	cfg.Options.Reader = json.RawMessage(`{"buf_size": 65536, "allow_exts": [], "max_bytes": 0}`)
	cfg.Options.Splitter = json.RawMessage(`{"max_line_bytes": 0, "allow_exts": [".java", ".kt"], "require_utf8": false}`)
	cfg.Options.Segmenter = json.RawMessage(`{"terminators": [";", "}", "])", "});"]}`)
	cfg.Options.Mapping = json.RawMessage(`{"keep_escapes": false, "skip_untranslatable": false}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "inline_system_template": "",
  "system_template_path": "",
  "max_mapping_entries": 80,
  "accessor": "getString(R.string.<key>)",
  "context_accessor": "context.getString(R.string.<key>)",
  "language": "Java"
}`)
	cfg.Options.Sanitizer = json.RawMessage(`{"markers": []}`)
	cfg.Options.Assembler = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{"output_dir": "out", "atomic": true, "flat": true}`)
	return cfg
}

// DotEnvTemplate 返回 .env 模板内容：列出支持的覆盖项与常见 Provider 密钥。
func DotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# llmsrc .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n")
	b.WriteString(EnvPrefix + "CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"SOURCE", "MAPPING", "SESSION", "BLOCK_SIZE", "MAX_TOKENS", "LLM", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"READER", "SPLITTER", "SEGMENTER", "MAPPING", "PROMPT_BUILDER", "SANITIZER", "ASSEMBLER", "WRITER"} {
		b.WriteString(EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	for _, p := range []string{"openai", "gemini"} {
		b.WriteString("\n# Provider 覆盖（" + p + "）\n")
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			b.WriteString(EnvPrefix + "PROVIDER__" + p + "__" + k + "=\n")
		}
	}
	b.WriteString("\n# 供应商 API Key（由客户端直接读取，不带前缀）\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("GEMINI_API_KEY=\n")
	return b.String()
}
