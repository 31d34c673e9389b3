package jsonmap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"llmsrc/pkg/contract"
)

// Options: JSON 映射文件选项。
type Options struct {
	// Path: 映射对象在文档中的 gjson 路径；为空表示根对象。
	Path string `json:"path"`
}

type loader struct {
	path string
}

// New 从原样 JSON Options 创建加载器。
func New(raw json.RawMessage) (contract.MappingLoader, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("jsonmap options: %w", err)
		}
	}
	return &loader{path: o.Path}, nil
}

// Load 读取 {"key": "text", ...} 形式的对象，按文档顺序构建映射。
// 非字符串值忽略。
func (l *loader) Load(ctx context.Context, r io.Reader) (contract.Mapping, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return contract.Mapping{}, err
	}
	if err := ctx.Err(); err != nil {
		return contract.Mapping{}, err
	}
	if !gjson.ValidBytes(b) {
		return contract.Mapping{}, fmt.Errorf("%w: mapping is not valid JSON", contract.ErrInvalidInput)
	}
	obj := gjson.ParseBytes(b)
	if l.path != "" {
		obj = gjson.GetBytes(b, l.path)
	}
	if !obj.IsObject() {
		return contract.Mapping{}, fmt.Errorf("%w: mapping at %q is not an object", contract.ErrInvalidInput, l.path)
	}
	var entries []contract.MappingEntry
	obj.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			entries = append(entries, contract.MappingEntry{
				Key:  strings.TrimSpace(k.String()),
				Text: norm.NFC.String(strings.TrimSpace(v.String())),
			})
		}
		return true
	})
	return contract.NewMapping(entries), nil
}
