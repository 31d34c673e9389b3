package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"llmsrc/pkg/contract"
)

const basicJSON = `{
  "source": "src/Main.java",
  "mapping": "res/values/strings.xml",
  "block_size": 40,
  "max_tokens": 6000,
  "logging": {"level": "debug"},
  "components": {"reader": "fs", "assembler": "repair"},
  "llm": "mock",
  "provider": {"mock": {"client": "mock", "options": {"mode": "i18n"}, "limits": {"rpm": 60}}}
}`

const basicYAML = `
source: src/Main.java
mapping: res/values/strings.xml
block_size: 40
max_tokens: 6000
logging:
  level: debug
components:
  reader: fs
  assembler: repair
llm: mock
provider:
  mock:
    client: mock
    options:
      mode: i18n
    limits:
      rpm: 60
`

// UT-CFG-01: JSON 与 YAML 解析到同一结构
func TestLoadJSONAndYAML(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "c.json", []byte(basicJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(mem, "c.yml", []byte(basicYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cj, err := Load(mem, "c.json", nil)
	if err != nil {
		t.Fatalf("加载 JSON 失败: %v", err)
	}
	cy, err := Load(mem, "c.yml", nil)
	if err != nil {
		t.Fatalf("加载 YAML 失败: %v", err)
	}
	if cj.LLM != "mock" || cj.BlockSize != 40 || cj.Components.Reader != "fs" {
		t.Fatalf("字段映射错误: %+v", cj)
	}
	// options 为原样 JSON，比较语义而非字节
	var oj, oy map[string]any
	_ = json.Unmarshal(cj.Provider["mock"].Options, &oj)
	_ = json.Unmarshal(cy.Provider["mock"].Options, &oy)
	if d := cmp.Diff(oj, oy); d != "" {
		t.Fatalf("provider options 不一致 (-json +yaml):\n%s", d)
	}
	pj, py := cj.Provider["mock"], cy.Provider["mock"]
	pj.Options, py.Options = nil, nil
	cj.Provider, cy.Provider = nil, nil
	if d := cmp.Diff(cj, cy); d != "" {
		t.Fatalf("JSON/YAML 不一致 (-json +yaml):\n%s", d)
	}
	if d := cmp.Diff(pj, py); d != "" {
		t.Fatalf("provider 不一致:\n%s", d)
	}
}

// UT-CFG-02: 含非法字段
func TestLoadUnknownField(t *testing.T) {
	if _, err := LoadJSON([]byte(`{"unknown":1}`)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("应当返回 ErrInvalidInput: %v", err)
	}
	if _, err := LoadYAML([]byte("unknown: 1\n")); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("YAML 未知字段应当报错: %v", err)
	}
	if _, err := Load(nil, "", nil); err == nil {
		t.Fatal("无配置来源应报错")
	}
}

// UT-CFG-03: ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"LLM_SRC_SOURCE=a.java",
		"LLM_SRC_BLOCK_SIZE=30",
		"LLM_SRC_LLM=mock",
		"LLM_SRC_COMPONENTS_ASSEMBLER=linear",
		"LLM_SRC_PROVIDER__mock__CLIENT=mock",
		"LLM_SRC_PROVIDER__mock__LIMITS_RPM=10",
		"LLM_SRC_PROVIDER__openai__OPTIONS_JSON=",
		"OTHER=1",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if over.Source != "a.java" || over.BlockSize != 30 || over.LLM != "mock" || over.Components.Assembler != "linear" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if p := over.Provider["mock"]; p.Client != "mock" || p.Limits.RPM != 10 {
		t.Fatalf("provider 覆盖不正确: %+v", p)
	}
	if _, ok := over.Provider["openai"]; ok {
		t.Fatal("空值不应记录 provider")
	}
	if _, err := EnvOverlay([]string{"LLM_SRC_BLOCK_SIZE=abc"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法数字应报错: %v", err)
	}
	if _, err := EnvOverlay([]string{"LLM_SRC_PROVIDER__x__OPTIONS_JSON={"}); err == nil {
		t.Fatal("非法 JSON 应报错")
	}
}

// 合并：非零覆盖；options 子树与 provider 条目整体替换
func TestMerge(t *testing.T) {
	base := Defaults()
	base.Provider = map[string]Provider{
		"mock":   {Client: "mock", Limits: Limits{RPM: 1}},
		"openai": {Client: "openai"},
	}
	base.Options.Segmenter = json.RawMessage(`{"terminators":[";"]}`)
	over := Config{
		BlockSize: 20,
		LLM:       " mock ",
		Provider:  map[string]Provider{"mock": {Client: "flaky"}},
		Options:   Options{Segmenter: json.RawMessage(`{"terminators":["}"]}`)},
	}
	got, err := Merge(base, over)
	if err != nil {
		t.Fatal(err)
	}
	if got.BlockSize != 20 || got.LLM != "mock" || got.PreviewBytes != 600 {
		t.Fatalf("标量合并错误: %+v", got)
	}
	if d := cmp.Diff(Provider{Client: "flaky"}, got.Provider["mock"]); d != "" {
		t.Fatalf("provider 应整体替换:\n%s", d)
	}
	if got.Provider["openai"].Client != "openai" {
		t.Fatal("未覆盖的 provider 应保留")
	}
	if string(got.Options.Segmenter) != `{"terminators":["}"]}` {
		t.Fatalf("options 子树应整体替换: %s", got.Options.Segmenter)
	}
	if string(got.Options.Writer) != `{"output_dir":"out"}` {
		t.Fatalf("未覆盖的 options 应保留: %s", got.Options.Writer)
	}
	// base 不被修改
	if base.Provider["mock"].Client != "mock" || base.BlockSize != 50 {
		t.Fatal("Merge 修改了 base")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("LLM_SRC_TEST_A=from-file\nLLM_SRC_TEST_B=\"quoted\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_SRC_TEST_A", "from-env")
	t.Setenv("LLM_SRC_TEST_B", "")
	os.Unsetenv("LLM_SRC_TEST_B")
	if err := LoadDotEnv(p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if os.Getenv("LLM_SRC_TEST_A") != "from-env" {
		t.Fatal("已有环境变量应优先")
	}
	if os.Getenv("LLM_SRC_TEST_B") != "quoted" {
		t.Fatalf("引号应去除: %q", os.Getenv("LLM_SRC_TEST_B"))
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("缺失文件应忽略: %v", err)
	}
}

// 补充覆盖: Validate 错误分支
func TestValidateErrors(t *testing.T) {
	if err := Validate(DefaultTemplateConfig()); err != nil {
		t.Fatalf("模板应通过校验: %v", err)
	}
	cases := map[string]func(*Config){
		"empty source":     func(c *Config) { c.Source = "" },
		"block size":       func(c *Config) { c.BlockSize = 0 },
		"negative budget":  func(c *Config) { c.MaxTokens = -1 },
		"no llm":           func(c *Config) { c.LLM = "" },
		"missing provider": func(c *Config) { c.LLM = "nope" },
		"empty client":     func(c *Config) { c.Provider["mock"] = Provider{} },
		"unknown client":   func(c *Config) { c.Provider["mock"] = Provider{Client: "nope"} },
		"over per-req":     func(c *Config) { c.MaxTokens = 1 << 20 },
		"unknown segmenter": func(c *Config) {
			c.Components.Segmenter = "nope"
		},
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultTemplateConfig()
			mut(&cfg)
			if err := Validate(cfg); !errors.Is(err, contract.ErrInvalidInput) {
				t.Fatalf("应失败: %v", err)
			}
		})
	}
}

func TestAssembleMock(t *testing.T) {
	mem := afero.NewMemMapFs()
	cfg := DefaultTemplateConfig()
	comp, set, err := Assemble(cfg, mem)
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if comp.LLM == nil || comp.Writer == nil || comp.MappingLoader == nil || comp.Segmenter == nil {
		t.Fatalf("组件缺失: %+v", comp)
	}
	if set.GateKey != "mock" || set.Gate == nil {
		t.Fatalf("限流键错误: %q", set.GateKey)
	}
	if set.BlockSize != 50 || set.MaxOutputTokens != 2000 || set.Source != cfg.Source {
		t.Fatalf("settings 错误: %+v", set)
	}

	cfg.Options.Splitter = json.RawMessage(`{"bogus":1}`)
	if _, _, err := Assemble(cfg, mem); !errors.Is(err, contract.ErrInvalidInput) || !strings.Contains(err.Error(), "splitter") {
		t.Fatalf("未知选项应在装配期失败: %v", err)
	}
}

func TestMaxOutputTokensAndSummary(t *testing.T) {
	if n := MaxOutputTokens(Provider{Options: json.RawMessage(`{"max_tokens":512}`)}); n != 512 {
		t.Fatalf("max_tokens 读取错误: %d", n)
	}
	if n := MaxOutputTokens(Provider{}); n != 2000 {
		t.Fatalf("默认输出上限错误: %d", n)
	}
	cfg := DefaultTemplateConfig()
	cfg.LLM = "openai"
	cfg.Provider["openai"] = Provider{Client: "openai", Options: json.RawMessage(`{"model":"gpt-4o","api_key":"sk-secret"}`)}
	kv := Summary(cfg)
	if kv["model"] != "gpt-4o" || kv["provider_client"] != "openai" {
		t.Fatalf("摘要错误: %v", kv)
	}
	for _, v := range kv {
		if strings.Contains(v, "sk-secret") {
			t.Fatal("摘要不应包含密钥")
		}
	}
}

func TestSessionPath(t *testing.T) {
	if got := SessionPath(Config{Source: "a/b/Main.java"}); got != filepath.Join(".llmsrc", "Main.java.session.yaml") {
		t.Fatalf("推导路径错误: %s", got)
	}
	if got := SessionPath(Config{Source: "-"}); got != filepath.Join(".llmsrc", "stdin.session.yaml") {
		t.Fatalf("STDIN 推导错误: %s", got)
	}
	if got := SessionPath(Config{Session: "s.yaml"}); got != "s.yaml" {
		t.Fatalf("显式路径错误: %s", got)
	}
}

func TestDotEnvTemplate(t *testing.T) {
	s := DotEnvTemplate()
	for _, k := range []string{"LLM_SRC_SOURCE=", "LLM_SRC_COMPONENTS_SEGMENTER=", "LLM_SRC_PROVIDER__gemini__OPTIONS_JSON=", "OPENAI_API_KEY="} {
		if !strings.Contains(s, k) {
			t.Fatalf("模板缺少 %s", k)
		}
	}
	// 模板中的每个覆盖键都能被 EnvOverlay 接受
	var env []string
	for _, ln := range strings.Split(s, "\n") {
		if strings.HasPrefix(ln, EnvPrefix) {
			env = append(env, ln)
		}
	}
	if _, err := EnvOverlay(env); err != nil {
		t.Fatalf("模板键解析失败: %v", err)
	}
}
