package lines

import (
	"context"
	"errors"
	"strings"
	"testing"

	"llmsrc/pkg/contract"
)

// TestSplitPreservesTerminators 行终止符原样保留
func TestSplitPreservesTerminators(t *testing.T) {
	s := New(nil)
	src := "\ufeffpackage a;\r\n\nclass A {}"
	recs, err := s.Split(context.Background(), "A.java", strings.NewReader(src))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"package a;\r\n", "\n", "class A {}"}
	if len(recs) != len(want) {
		t.Fatalf("len %d want %d", len(recs), len(want))
	}
	var sb strings.Builder
	for i, r := range recs {
		if r.Text != want[i] || r.Index != contract.Index(i) || r.FileID != "A.java" {
			t.Fatalf("rec %d = %+v", i, r)
		}
		sb.WriteString(r.Text)
	}
	if sb.String() != strings.TrimPrefix(src, "\ufeff") {
		t.Fatalf("concatenation differs")
	}
}

// TestSplitEmpty 空输入没有记录
func TestSplitEmpty(t *testing.T) {
	recs, err := New(nil).Split(context.Background(), "A.java", strings.NewReader(""))
	if err != nil || len(recs) != 0 {
		t.Fatalf("empty: %v %v", recs, err)
	}
}

// TestSplitExtFilter 扩展名过滤；STDIN 不受限
func TestSplitExtFilter(t *testing.T) {
	s := New(nil)
	if _, err := s.Split(context.Background(), "a.txt", strings.NewReader("x")); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
	if recs, err := s.Split(context.Background(), "stdin", strings.NewReader("x")); err != nil || len(recs) != 1 {
		t.Fatalf("stdin: %v %v", recs, err)
	}
	open := New(&Options{AllowExts: []string{}})
	if recs, err := open.Split(context.Background(), "a.txt", strings.NewReader("x\ny")); err != nil || len(recs) != 2 {
		t.Fatalf("unrestricted: %v %v", recs, err)
	}
}

// TestSplitLimits 行长与编码校验
func TestSplitLimits(t *testing.T) {
	s := New(&Options{MaxLineBytes: 4})
	if _, err := s.Split(context.Background(), "a.java", strings.NewReader("ok;\ntoo long;\n")); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("want budget exceeded, got %v", err)
	}
	u := New(&Options{RequireUTF8: true})
	if _, err := u.Split(context.Background(), "a.java", strings.NewReader("a\xffb\n")); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid utf8, got %v", err)
	}
}

// TestSplitCanceled 取消的 ctx
func TestSplitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).Split(ctx, "a.java", strings.NewReader("x\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
}
