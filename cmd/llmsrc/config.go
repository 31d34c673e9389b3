package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	cfgpkg "llmsrc/internal/config"
)

// overrides 为命令行覆盖（零值表示未设置）。
type overrides struct {
	source    string
	mapping   string
	llm       string
	blockSize int
	maxTokens int
}

func (o overrides) config() cfgpkg.Config {
	return cfgpkg.Config{
		Source:    o.source,
		Mapping:   o.mapping,
		LLM:       o.llm,
		BlockSize: o.blockSize,
		MaxTokens: o.maxTokens,
	}
}

func lookupEnv(environ []string, key string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// loadConfig 按优先级合并：Defaults → 配置文件（或 LLM_SRC_CONFIG_JSON）→ ENV → CLI。
func (a *app) loadConfig(ov overrides) (cfgpkg.Config, error) {
	env := a.environ()
	cfg := cfgpkg.Defaults()

	path := a.configPath
	if path == "" {
		path = lookupEnv(env, cfgpkg.EnvPrefix+"CONFIG_FILE")
	}
	raw := []byte(lookupEnv(env, cfgpkg.EnvPrefix+"CONFIG_JSON"))
	if path == "" && len(raw) == 0 {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if ok, _ := afero.Exists(a.fs, p); ok {
				path = p
				break
			}
		}
	}
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(a.fs, path, raw)
		if err != nil {
			return cfg, configErr(fmt.Errorf("配置解析失败: %w", err))
		}
		if cfg, err = cfgpkg.Merge(cfg, base); err != nil {
			return cfg, configErr(err)
		}
	}

	overEnv, err := cfgpkg.EnvOverlay(env)
	if err != nil {
		return cfg, configErr(fmt.Errorf("环境变量解析失败: %w", err))
	}
	if cfg, err = cfgpkg.Merge(cfg, overEnv); err != nil {
		return cfg, configErr(err)
	}
	if cfg, err = cfgpkg.Merge(cfg, ov.config()); err != nil {
		return cfg, configErr(err)
	}
	if a.sessionPath != "" {
		cfg.Session = a.sessionPath
	}
	return cfg, nil
}

// resolveSession 返回会话文件路径：--session 优先，否则由配置推导。
func (a *app) resolveSession() (string, error) {
	if a.sessionPath != "" {
		return a.sessionPath, nil
	}
	cfg, err := a.loadConfig(overrides{})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Session) == "" && strings.TrimSpace(cfg.Source) == "" {
		return "", configErr(errors.New("无法确定会话文件：请提供 --session 或在配置中设置 source"))
	}
	return cfgpkg.SessionPath(cfg), nil
}

// withOutputDir 覆盖 writer 选项中的 output_dir，其余键保持不变。
func withOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("writer options: %w", err)
		}
	}
	m["output_dir"] = dir
	return json.Marshal(m)
}

// writeNew 写入新文件；已存在则跳过并返回 false（不覆盖）。
func writeNew(fs afero.Fs, path string, data []byte) (bool, error) {
	if ok, err := afero.Exists(fs, path); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// encodeConfig 按扩展名输出 JSON 或 YAML。
func encodeConfig(cfg cfgpkg.Config, path string) ([]byte, error) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
		return yaml.Marshal(doc)
	default:
		return append(b, '\n'), nil
	}
}
