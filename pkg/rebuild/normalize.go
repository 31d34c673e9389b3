package rebuild

import (
	"strings"
)

// Normalize 做结构性清理：
//   - package 行仅保留首个，import 行按文本去重，二者均左对齐输出；
//   - 指定的顶层类型声明仅保留首个；
//   - switch 内 case/default/break 统一缩进；
//   - 单独的 "{" / "}" 仅在上一保留行以 ")" 或 "{" 结尾时保留；
//   - 连续空行合并为一个。
//
// 输出以换行结尾（空文档除外）。
func (c *Classifier) Normalize(doc string) string {
	var (
		out        []string
		seenPkg    bool
		seenImport = map[string]bool{}
		typeName   string
		sw         = switchMachine{indent: c.switchIndent}
	)
	for _, raw := range splitLines(doc) {
		ln := c.Classify(raw)
		switch {
		case ln.Sig.Has(SigPackage):
			if !seenPkg {
				seenPkg = true
				out = append(out, ln.Left)
			}
			continue
		case ln.Sig.Has(SigImport):
			if !seenImport[ln.Left] {
				seenImport[ln.Left] = true
				out = append(out, ln.Left)
			}
			continue
		case ln.Sig.Has(SigTypeDecl):
			if typeName == "" {
				typeName = ln.TypeName
			} else if ln.TypeName == typeName {
				continue
			}
		}
		if s, ok := sw.step(ln); ok {
			out = append(out, s)
			continue
		}
		if ln.Sig.Has(SigLoneBrace) {
			if len(out) == 0 {
				continue
			}
			prev := strings.TrimSpace(out[len(out)-1])
			if !strings.HasSuffix(prev, ")") && !strings.HasSuffix(prev, "{") {
				continue
			}
		}
		out = append(out, raw)
	}
	out = collapseBlank(out)
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func collapseBlank(lines []string) []string {
	res := lines[:0:0]
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			res = append(res, "")
			continue
		}
		blank = false
		res = append(res, l)
	}
	return res
}
