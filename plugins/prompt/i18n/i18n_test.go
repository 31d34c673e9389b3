package i18n

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"llmsrc/pkg/contract"
)

func mapping() contract.Mapping {
	return contract.NewMapping([]contract.MappingEntry{
		{Key: "hello", Text: "Hello"},
		{Key: "bye", Text: "Goodbye"},
		{Key: "ok", Text: "OK"},
	})
}

// TestBuildDefault 默认模板：system + user（映射摘录 + 源码块）
func TestBuildDefault(t *testing.T) {
	b, err := New(nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blk := contract.Block{Index: 0, Carry: "foo(a,", Lines: []string{"b);\n"}}
	p, err := b.Build(context.Background(), blk, mapping())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp, ok := p.(contract.ChatPrompt)
	if !ok || len(cp) != 2 || cp[0].Role != "system" || cp[1].Role != "user" {
		t.Fatalf("unexpected prompt %#v", p)
	}
	if !strings.Contains(cp[0].Content, "getString(R.string.<key>)") || strings.Contains(cp[0].Content, "{{") {
		t.Fatalf("system not rendered: %s", cp[0].Content)
	}
	user := cp[1].Content
	for _, want := range []string{"hello => Hello\n", "ok => OK\n", contract.BlockSectionHeader, "foo(a,\nb);\n"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user missing %q: %s", want, user)
		}
	}
	if !strings.HasSuffix(user, blk.Text()) {
		t.Fatalf("block must close the user message")
	}
}

// TestBuildExcerptBounded 映射摘录受上限约束
func TestBuildExcerptBounded(t *testing.T) {
	b, _ := New(&Options{MaxMappingEntries: 2}, nil)
	p, _ := b.Build(context.Background(), contract.Block{Lines: []string{"x;\n"}}, mapping())
	user := p.(contract.ChatPrompt)[1].Content
	if strings.Contains(user, "ok => OK") || !strings.Contains(user, "bye => Goodbye") {
		t.Fatalf("excerpt not bounded: %s", user)
	}
}

// TestBuildEmptyBlock 空块不构造提示词
func TestBuildEmptyBlock(t *testing.T) {
	b, _ := New(nil, nil)
	if _, err := b.Build(context.Background(), contract.Block{}, mapping()); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}

// TestTemplateFromFile 模板文件与变量
func TestTemplateFromFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "sys.tmpl", []byte("Rewrite {{.Language}} with {{.Accessor}}"), 0o644)
	b, err := New(&Options{SystemTemplatePath: "sys.tmpl", Language: "Kotlin", Accessor: "res(%s)"}, fs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, _ := b.Build(context.Background(), contract.Block{Lines: []string{"x\n"}}, contract.Mapping{})
	if got := p.(contract.ChatPrompt)[0].Content; got != "Rewrite Kotlin with res(%s)" {
		t.Fatalf("system = %q", got)
	}
	if _, err := New(&Options{SystemTemplatePath: "missing"}, fs); err == nil {
		t.Fatalf("expect read error")
	}
	if _, err := New(&Options{InlineSystemTemplate: "{{.Nope}}"}, fs); err == nil {
		t.Fatalf("expect render error for unknown field")
	}
}

// TestEstimateOverhead 开销估算只含固定部分
func TestEstimateOverhead(t *testing.T) {
	b, _ := New(nil, nil)
	est := b.EstimateOverheadTokens(func(s string) int { return len(s) })
	if est <= len(b.sys) {
		t.Fatalf("expect system + fixed user, got %d", est)
	}
	if b.EstimateOverheadTokens(nil) != 0 {
		t.Fatalf("nil estimator")
	}
}
