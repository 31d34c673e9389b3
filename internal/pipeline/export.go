package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmsrc/internal/diag"
	"llmsrc/internal/session"
	"llmsrc/pkg/contract"
)

// sidecarLine 为 <name>.warnings.jsonl 的一行。
type sidecarLine struct {
	Kind     string            `json:"kind"` // warning|correction
	Category contract.Category `json:"category,omitempty"`
	Line     int               `json:"line"`
	Text     string            `json:"text"`
}

// Export 重建并写出文档与诊断边车；返回所用的重建结果。
func (r *Runner) Export(ctx context.Context, s *session.Session, name contract.ArtifactID) (contract.Report, error) {
	if r.Comp.Writer == nil {
		return contract.Report{}, fmt.Errorf("%w: no writer", contract.ErrInvalidInput)
	}
	rep, err := r.Render(ctx, s)
	if err != nil {
		return rep, err
	}
	tm := r.Logger.StartWith("writer", "write", string(name), "")
	if err := r.Comp.Writer.Write(ctx, name, strings.NewReader(rep.Document)); err != nil {
		return rep, stageErr(r.Logger, "writer", string(name), "", err)
	}
	side, err := Sidecar(rep)
	if err != nil {
		return rep, err
	}
	if err := r.Comp.Writer.Write(ctx, name+".warnings.jsonl", bytes.NewReader(side)); err != nil {
		return rep, stageErr(r.Logger, "writer", string(name), "", err)
	}
	tm.Finish("write", int64(len(rep.Warnings)))
	diag.IncOp("writer", "finish", "success")
	return rep, nil
}

// Sidecar 将诊断编码为 JSON Lines：先全部告警，后全部修正建议。
func Sidecar(rep contract.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, w := range rep.Warnings {
		if err := enc.Encode(sidecarLine{Kind: "warning", Category: w.Category, Line: w.Line, Text: w.Text}); err != nil {
			return nil, fmt.Errorf("sidecar encode: %w", err)
		}
	}
	for _, c := range rep.Corrections {
		if err := enc.Encode(sidecarLine{Kind: "correction", Line: c.Line, Text: c.Text}); err != nil {
			return nil, fmt.Errorf("sidecar encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}
