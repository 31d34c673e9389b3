package contract

import "context"

// Assembler: 将按块序排列的清洗后结果重建为单一文档，并产出诊断。
// 约束：
//  1. 纯计算，不做 I/O；
//  2. 不修改入参；
//  3. 空字符串表示该块尚无结果（占位）。
type Assembler interface {
	Assemble(ctx context.Context, results []string) (Report, error)
}

// Sanitizer: 从模型原始输出中去除 Markdown 代码围栏，其余内容原样保留。
type Sanitizer interface {
	Sanitize(ctx context.Context, raw Raw) (string, error)
}
