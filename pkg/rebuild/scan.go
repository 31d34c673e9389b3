package rebuild

import "llmsrc/pkg/contract"

// Scan 逐行扫描结构性可疑点（只报告，不修改）。
func (c *Classifier) Scan(doc string) []contract.Warning {
	var ws []contract.Warning
	for i, raw := range splitLines(doc) {
		ln := c.Classify(raw)
		if ln.Sig.Has(SigAccessorCut) {
			ws = append(ws, contract.Warning{Category: contract.BrokenAccessorCall, Line: i + 1, Text: ln.Trimmed})
		}
		// 以 "." 或 "+" 结尾的行必然不以 ";" 结尾
		if ln.Sig.Has(SigOperatorEnd) {
			ws = append(ws, contract.Warning{Category: contract.DanglingOperator, Line: i + 1, Text: ln.Trimmed})
		}
		if ln.Sig.Has(SigUnbalanced) {
			ws = append(ws, contract.Warning{Category: contract.UnbalancedBracket, Line: i + 1, Text: ln.Trimmed})
		}
	}
	return ws
}
