package rebuild

import "llmsrc/pkg/contract"

// DetectTruncatedStrings 找出字面量未闭合且下一行以声明关键字开头的行，
// 为每处给出告警与建议修正（不自动应用）。
func (c *Classifier) DetectTruncatedStrings(doc string) ([]contract.Warning, []contract.Correction) {
	lines := splitLines(doc)
	var (
		ws []contract.Warning
		cs []contract.Correction
	)
	for i := 0; i+1 < len(lines); i++ {
		ln := c.Classify(lines[i])
		if !ln.Sig.Has(SigOpenLiteral) {
			continue
		}
		if !c.Classify(lines[i+1]).Sig.Has(SigDeclStart) {
			continue
		}
		ws = append(ws, contract.Warning{Category: contract.TruncatedString, Line: i + 1, Text: ln.Trimmed})
		cs = append(cs, contract.Correction{Line: i + 1, Text: ln.Trimmed + c.rules.CorrectionHint})
	}
	return ws, cs
}
