// Package rebuild 将逐块结果重建为单一源文件：边界去重、行修复、扫描、
// 截断字符串检测与结构规范化。所有步骤均为纯函数。
package rebuild

import "llmsrc/pkg/contract"

// Rebuild 依次执行：Dedup → RepairLines → Scan / DetectTruncatedStrings → Normalize。
// 扫描类步骤作用于行修复后的文本，行号与 Normalize 之前的文档对应。
func (c *Classifier) Rebuild(results []string) contract.Report {
	joined := Dedup(results)
	repaired, repairWarn := c.RepairLines(joined)
	scanWarn := c.Scan(repaired)
	truncWarn, corrections := c.DetectTruncatedStrings(repaired)
	return contract.Report{
		Document:    c.Normalize(repaired),
		Warnings:    MergeWarnings(repairWarn, scanWarn, truncWarn),
		Corrections: corrections,
	}
}

// MergeWarnings 合并多组告警：相同 (类别, 行号, 文本) 只保留一条，结果按行号排序。
func MergeWarnings(groups ...[]contract.Warning) []contract.Warning {
	seen := make(map[contract.Warning]struct{})
	var out []contract.Warning
	for _, g := range groups {
		for _, w := range g {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	contract.SortWarnings(out)
	return out
}
