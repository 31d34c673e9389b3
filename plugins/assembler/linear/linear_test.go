package linear

import (
	"context"
	"testing"
)

// TestAssembleDedupOnly 仅去重拼接，不产生诊断
func TestAssembleDedupOnly(t *testing.T) {
	a, _ := New(nil)
	rep, err := a.Assemble(context.Background(), []string{"a;\nfoo(\n", "foo(\nb;\n", ""})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if rep.Document != "a;\nfoo(\nb;\n" {
		t.Fatalf("doc = %q", rep.Document)
	}
	if len(rep.Warnings) != 0 || len(rep.Corrections) != 0 {
		t.Fatalf("linear must not diagnose: %+v", rep)
	}
}

// TestAssembleCanceled 取消的 ctx
func TestAssembleCanceled(t *testing.T) {
	a, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Assemble(ctx, nil); err == nil {
		t.Fatalf("expect ctx error")
	}
}
