package repair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"llmsrc/pkg/contract"
	"llmsrc/pkg/rebuild"
)

// Options 即重建规则；零值字段使用默认规则。
type Options = rebuild.Rules

type assembler struct {
	c *rebuild.Classifier
}

// New 从原样 JSON Options 创建修复装配器（严格解码，拒绝未知字段）。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("repair options: %w: %v", contract.ErrInvalidInput, err)
		}
	}
	c, err := rebuild.NewClassifier(o)
	if err != nil {
		return nil, err
	}
	return &assembler{c: c}, nil
}

// Assemble 执行完整重建链并返回文档与诊断。
func (a *assembler) Assemble(ctx context.Context, results []string) (contract.Report, error) {
	select {
	case <-ctx.Done():
		return contract.Report{}, ctx.Err()
	default:
	}
	return a.c.Rebuild(results), nil
}

var _ contract.Assembler = (*assembler)(nil)
