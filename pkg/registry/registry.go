package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"llmsrc/pkg/contract"
	"llmsrc/plugins/assembler/linear"
	"llmsrc/plugins/assembler/repair"
	"llmsrc/plugins/llmclient/flaky"
	gmi "llmsrc/plugins/llmclient/gemini"
	"llmsrc/plugins/llmclient/mock"
	oai "llmsrc/plugins/llmclient/openai"
	"llmsrc/plugins/mapping/androidxml"
	"llmsrc/plugins/mapping/jsonmap"
	"llmsrc/plugins/prompt/i18n"
	rfs "llmsrc/plugins/reader/filesystem"
	"llmsrc/plugins/sanitizer/fence"
	"llmsrc/plugins/segmenter/carry"
	"llmsrc/plugins/splitter/lines"
	wfs "llmsrc/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrInvalidInput, err)
	}
	return nil
}

// checked 先以 Options 类型严格校验，再交给只接收原样 JSON 的插件构造函数。
func checked[O any, T any](build func(json.RawMessage) (T, error)) func(json.RawMessage) (T, error) {
	return func(raw json.RawMessage) (T, error) {
		var o O
		if err := strictUnmarshal(raw, &o); err != nil {
			var zero T
			return zero, err
		}
		return build(raw)
	}
}

// NewReader 工厂签名：接收原样 JSON Options 与文件系统。
type NewReader func(raw json.RawMessage, fs afero.Fs) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewSegmenter 工厂签名：接收原样 JSON Options。
type NewSegmenter func(raw json.RawMessage) (contract.Segmenter, error)

// NewMappingLoader 工厂签名：接收原样 JSON Options。
type NewMappingLoader func(raw json.RawMessage) (contract.MappingLoader, error)

// NewPromptBuilder 工厂签名：fs 仅用于读取模板文件。
type NewPromptBuilder func(raw json.RawMessage, fs afero.Fs) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewSanitizer 工厂签名：接收原样 JSON Options。
type NewSanitizer func(raw json.RawMessage) (contract.Sanitizer, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options 与文件系统。
type NewWriter func(raw json.RawMessage, fs afero.Fs) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage, fs afero.Fs) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts, fs), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// lines: 按行拆分，保留终止符
	"lines": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts lines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lines.New(&opts), nil
	},
}

// Segmenter 工厂注册表。
var Segmenter = map[string]NewSegmenter{
	// carry: 固定步长，块末不完整行延后到下一块
	"carry": func(raw json.RawMessage) (contract.Segmenter, error) {
		var opts carry.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return carry.New(&opts), nil
	},
}

// MappingLoader 工厂注册表。
var MappingLoader = map[string]NewMappingLoader{
	"androidxml": checked[androidxml.Options](androidxml.New),
	"json":       checked[jsonmap.Options](jsonmap.New),
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// i18n: 资源化改写（system + 映射摘录 + 源码块）
	"i18n": func(raw json.RawMessage, fs afero.Fs) (contract.PromptBuilder, error) {
		var opts i18n.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return i18n.New(&opts, fs)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": checked[oai.Options](oai.New),
	"gemini": checked[gmi.Options](gmi.New),
	"mock":   checked[mock.Options](mock.New),
	"flaky":  checked[flaky.Options](flaky.New),
}

// Sanitizer 工厂注册表。
var Sanitizer = map[string]NewSanitizer{
	// fence: 去除 Markdown 代码围栏行
	"fence": checked[fence.Options](fence.New),
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// repair: 去重 → 行修复 → 扫描/截断检测 → 结构规范化
	"repair": checked[repair.Options](repair.New),
	// linear: 仅去重拼接
	"linear": checked[linear.Options](linear.New),
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage, fs afero.Fs) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts, fs)
	},
}
