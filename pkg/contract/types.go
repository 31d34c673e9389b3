package contract

import (
	"path"
	"strings"
)

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// NormalizeFileID 统一为正斜杠并清理 . 与 ..；不做绝对化。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// Index: 单文件内稳定递增的行号（0..n-1）。
type Index int64

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string

// Record: 源文件中的一行。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增；
// - Text 原样保留行终止符（最后一行可能没有）。
type Record struct {
	Index  Index
	FileID FileID
	Text   string
}

// Block: 一次模型调用对应的源文本块，形如 [Carry][源切片]。
// 约束：
//  1. Index 自 0 连续递增，与块序一致；
//  2. Carry 为上一块延后的不完整行（无终止符），可为空；
//  3. From/To 为源切片的闭区间（全局 Index）；Carry 不计入区间。
type Block struct {
	FileID FileID
	Index  int
	Carry  string
	From   Index
	To     Index
	Lines  []string
}

// Text: 块的完整文本。Carry 与后续行之间补一个换行。
func (b Block) Text() string {
	var sb strings.Builder
	if b.Carry != "" {
		sb.WriteString(b.Carry)
		sb.WriteByte('\n')
	}
	for _, l := range b.Lines {
		sb.WriteString(l)
	}
	return sb.String()
}

// LineCount: 块内行数（含 Carry）。
func (b Block) LineCount() int {
	n := len(b.Lines)
	if b.Carry != "" {
		n++
	}
	return n
}

// Segmentation: 分块结果。Residual 为文件末尾未能并入任何块的 Carry。
type Segmentation struct {
	Blocks   []Block
	Residual string
}
