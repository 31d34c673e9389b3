package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"llmsrc/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的统一前缀。
const EnvPrefix = "LLM_SRC_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由配置文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		BlockSize:    50,
		PreviewBytes: 600,
		Logging:      Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:        "fs",
			Splitter:      "lines",
			Segmenter:     "carry",
			Mapping:       "androidxml",
			PromptBuilder: "i18n",
			Sanitizer:     "fence",
			Assembler:     "repair",
			Writer:        "fs",
		},
		Options: Options{Writer: json.RawMessage(`{"output_dir":"out"}`)},
	}
}

// Load 从文件或原始字节解析 Config（严格拒绝未知字段）。
// 扩展名为 .yaml/.yml 时按 YAML 解析，否则按 JSON；raw 非空时优先，按 JSON 解析。
func Load(fs afero.Fs, path string, raw []byte) (Config, error) {
	switch {
	case len(raw) > 0:
		return LoadJSON(raw)
	case path != "":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return Config{}, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return LoadYAML(b)
		default:
			return LoadJSON(b)
		}
	default:
		return Config{}, errors.New("no config source provided")
	}
}

// LoadJSON 严格解析 JSON 配置。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: config: %v", contract.ErrInvalidInput, err)
	}
	return cfg, nil
}

// LoadYAML 先把 YAML 转为 JSON，再走同一套严格解析，保证两种格式共用一个 schema。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: config yaml: %v", contract.ErrInvalidInput, err)
	}
	if doc == nil {
		return Config{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config yaml: %v", contract.ErrInvalidInput, err)
	}
	return LoadJSON(b)
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量与字符串非零即覆盖；组件 Options 子树与 provider 条目整体替换，不做深度合并。
func Merge(base, over Config) (Config, error) {
	out := base
	out.Provider = nil
	top := over
	top.Provider = nil
	if err := mergo.Merge(&out, top, mergo.WithOverride); err != nil {
		return base, fmt.Errorf("config merge: %w", err)
	}
	if len(base.Provider)+len(over.Provider) > 0 {
		out.Provider = make(map[string]Provider, len(base.Provider)+len(over.Provider))
		for k, v := range base.Provider {
			out.Provider[k] = v
		}
		for k, v := range over.Provider {
			out.Provider[k] = v
		}
	}
	out.Logging.Level = strings.TrimSpace(out.Logging.Level)
	out.LLM = strings.TrimSpace(out.LLM)
	return out, nil
}

// LoadDotEnv 读取 .env 注入进程环境；文件不存在时忽略，已存在的环境变量保持优先。
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 LLM_SRC_；本集合之外的键忽略。
// 支持：SOURCE, MAPPING, SESSION, BLOCK_SIZE, MAX_TOKENS, LLM, LOG_LEVEL, LOG_DIR, COMPONENTS_*
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) || key == EnvPrefix {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		val = strings.TrimSpace(val)
		switch nk {
		case "SOURCE":
			over.Source = val
		case "MAPPING":
			over.Mapping = val
		case "SESSION":
			over.Session = val
		case "BLOCK_SIZE":
			if err := setInt(&over.BlockSize, nk, val); err != nil {
				return over, err
			}
		case "MAX_TOKENS":
			if err := setInt(&over.MaxTokens, nk, val); err != nil {
				return over, err
			}
		case "LLM":
			over.LLM = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = val
		case "COMPONENTS_SEGMENTER":
			over.Components.Segmenter = val
		case "COMPONENTS_MAPPING":
			over.Components.Mapping = val
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = val
		case "COMPONENTS_SANITIZER":
			over.Components.Sanitizer = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if !strings.HasPrefix(nk, "PROVIDER__") {
				continue
			}
			parts := strings.SplitN(nk, "__", 3)
			if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" {
				continue
			}
			name := strings.TrimSpace(parts[1])
			p := prov[name]
			changed := true
			switch parts[2] {
			case "CLIENT":
				p.Client = val
				changed = val != ""
			case "LIMITS_RPM":
				if err := setInt(&p.Limits.RPM, nk, val); err != nil {
					return over, err
				}
			case "LIMITS_TPM":
				if err := setInt(&p.Limits.TPM, nk, val); err != nil {
					return over, err
				}
			case "LIMITS_MAX_TOKENS_PER_REQ":
				if err := setInt(&p.Limits.MaxTokensPerReq, nk, val); err != nil {
					return over, err
				}
			case "OPTIONS_JSON":
				if val != "" && !json.Valid([]byte(val)) {
					return over, fmt.Errorf("%w: %s%s: invalid json", contract.ErrInvalidInput, EnvPrefix, nk)
				}
				p.Options = json.RawMessage(val)
				changed = val != ""
			default:
				changed = false
			}
			// 空值不记录，避免覆盖配置文件
			if changed {
				prov[name] = p
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// setInt: 空值视为未设置；非法数字报错。
func setInt(dst *int, key, val string) error {
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%w: %s%s=%q", contract.ErrInvalidInput, EnvPrefix, key, val)
	}
	*dst = n
	return nil
}

// SessionPath 返回会话文件路径：显式配置优先，否则为 .llmsrc/<源文件名>.session.yaml。
func SessionPath(cfg Config) string {
	if s := strings.TrimSpace(cfg.Session); s != "" {
		return s
	}
	base := "stdin"
	if src := strings.TrimSpace(cfg.Source); src != "" && src != "-" {
		base = filepath.Base(src)
	}
	return filepath.Join(".llmsrc", base+".session.yaml")
}
