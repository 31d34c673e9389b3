package contract

import (
	"fmt"
	"sort"
)

// Category: 诊断类别（封闭集合）。
type Category int

const (
	// BrokenAccessorCall: 资源访问器调用在行尾被截断。
	BrokenAccessorCall Category = iota + 1
	// DanglingOperator: 行以 ( + . 等结尾，疑似被切断。
	DanglingOperator
	// UnbalancedBracket: 开括号多于闭括号。
	UnbalancedBracket
	// TruncatedString: 字符串字面量未闭合且下一行为声明。
	TruncatedString
	// RedundantDeclaration: 重复的 package/import/类型声明。
	// 仅用于分类命名：规范化阶段静默删除这类行，重建结果中不会出现该类别的告警。
	RedundantDeclaration
)

var categoryNames = map[Category]string{
	BrokenAccessorCall:   "broken_accessor_call",
	DanglingOperator:     "dangling_operator",
	UnbalancedBracket:    "unbalanced_bracket",
	TruncatedString:      "truncated_string",
	RedundantDeclaration: "redundant_declaration",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText 以稳定名称序列化（JSON/YAML 共用）。
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidInput, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	for k, v := range categoryNames {
		if v == string(b) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, string(b))
}

// Warning: 一条诊断；Line 为重建文档中的 1 基行号，Text 为去空白后的行内容。
type Warning struct {
	Category Category `json:"category" yaml:"category"`
	Line     int      `json:"line" yaml:"line"`
	Text     string   `json:"text" yaml:"text"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%d: %s: %s", w.Line, w.Category, w.Text)
}

// Correction: 建议的修正行（仅建议，不自动应用）。
type Correction struct {
	Line int    `json:"line" yaml:"line"`
	Text string `json:"text" yaml:"text"`
}

// Report: 重建结果。
type Report struct {
	Document    string
	Warnings    []Warning
	Corrections []Correction
}

// SortWarnings 按 (Line, Category, Text) 原地排序。
func SortWarnings(ws []Warning) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Line != ws[j].Line {
			return ws[i].Line < ws[j].Line
		}
		if ws[i].Category != ws[j].Category {
			return ws[i].Category < ws[j].Category
		}
		return ws[i].Text < ws[j].Text
	})
}
