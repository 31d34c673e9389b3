package linear

import (
	"context"
	"encoding/json"

	"llmsrc/pkg/contract"
	"llmsrc/pkg/rebuild"
)

// Options: 预留占位，线性装配无需配置。
type Options struct{}

type assembler struct{}

// New 从原样 JSON Options 创建线性装配器（当前忽略选项）。
func New(raw json.RawMessage) (contract.Assembler, error) {
	_ = raw
	return &assembler{}, nil
}

// Assemble 仅做块边界去重与拼接，不修复、不扫描。
func (a *assembler) Assemble(ctx context.Context, results []string) (contract.Report, error) {
	select {
	case <-ctx.Done():
		return contract.Report{}, ctx.Err()
	default:
	}
	return contract.Report{Document: rebuild.Dedup(results)}, nil
}

var _ contract.Assembler = (*assembler)(nil)
