package rebuild

import (
	"strings"
	"unicode"

	"llmsrc/pkg/contract"
)

// RepairLines 合并被切断的访问器调用行，并记录疑似被切断的行。
// 合并规则：当前行去右空白 + 下一行去两侧空白，若括号平衡且以 ");" 结尾则采纳，
// 合并行保留当前行的缩进；否则保留原行并记 BrokenAccessorCall。
// 未被合并的行若以 ( + . 结尾，记 DanglingOperator。
// 行号为输出文档中的 1 基行号。
func (c *Classifier) RepairLines(doc string) (string, []contract.Warning) {
	lines := splitLines(doc)
	out := make([]string, 0, len(lines))
	var ws []contract.Warning
	for i := 0; i < len(lines); i++ {
		ln := c.Classify(lines[i])
		if ln.Sig.Has(SigAccessorOpen) {
			if i+1 < len(lines) {
				merged := strings.TrimRightFunc(lines[i], unicode.IsSpace) + strings.TrimSpace(lines[i+1])
				if closesCall(merged) {
					out = append(out, merged)
					i++
					continue
				}
			}
			ws = append(ws, contract.Warning{Category: contract.BrokenAccessorCall, Line: len(out) + 1, Text: ln.Trimmed})
		}
		if ln.Sig.Has(SigOpenParenEnd | SigOperatorEnd) {
			ws = append(ws, contract.Warning{Category: contract.DanglingOperator, Line: len(out) + 1, Text: ln.Trimmed})
		}
		out = append(out, lines[i])
	}
	return strings.Join(out, "\n"), ws
}

func closesCall(s string) bool {
	return strings.Count(s, "(") == strings.Count(s, ")") && strings.HasSuffix(strings.TrimSpace(s), ");")
}
