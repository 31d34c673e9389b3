package rebuild

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmsrc/pkg/contract"
)

func newC(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(Rules{})
	require.NoError(t, err)
	return c
}

func TestDedupBoundary(t *testing.T) {
	got := Dedup([]string{"a;\nb;\n", "  b;\nc;"})
	assert.Equal(t, "a;\nb;\nc;", got)

	// 首行不同则原样拼接，缺少终止符时补换行
	assert.Equal(t, "a;\nb;", Dedup([]string{"a;", "b;"}))
}

func TestDedupPlaceholders(t *testing.T) {
	// 占位不参与比较：第三块首行与第一块末行相同也不去除
	got := Dedup([]string{"x;\n", "", "x;\ny;\n"})
	assert.Equal(t, "x;\nx;\ny;\n", got)
	assert.Equal(t, "", Dedup([]string{"", "", ""}))
	assert.Equal(t, "", Dedup(nil))
}

func TestDedupComparesAgainstDeduplicated(t *testing.T) {
	// 第二块仅有一行且被去除，第三块与空结果比较
	got := Dedup([]string{"a;\n", "a;", "a;\nb;"})
	assert.Equal(t, "a;\na;\nb;", got)
}

func TestDedupIdempotentAndRoundTrip(t *testing.T) {
	inputs := [][]string{
		{"a;\nb;\n", "b;\nc;\n"},
		{"package x;\n\nclass A {\n", "  int f;\n}\n"},
		{"only\n\n\n"},
	}
	for _, in := range inputs {
		once := Dedup(in)
		assert.Equal(t, once, Dedup([]string{once}))
	}
	resp := "int a = 1;\n    foo();\n"
	assert.Equal(t, resp, Dedup([]string{resp}))
}

func TestRepairLinesMergesAccessor(t *testing.T) {
	c := newC(t)
	doc, ws := c.RepairLines("    foo(getString(R.string.bar\n        ));\nnext();")
	assert.Equal(t, "    foo(getString(R.string.bar));\nnext();", doc)
	assert.Empty(t, ws)
}

func TestRepairLinesUnmergeable(t *testing.T) {
	c := newC(t)
	doc, ws := c.RepairLines("String t = getString(R.string.title\nint x = 1;\nfoo(\nbar +\nbaz.")
	assert.Equal(t, "String t = getString(R.string.title\nint x = 1;\nfoo(\nbar +\nbaz.", doc)
	want := []contract.Warning{
		{Category: contract.BrokenAccessorCall, Line: 1, Text: "String t = getString(R.string.title"},
		{Category: contract.DanglingOperator, Line: 3, Text: "foo("},
		{Category: contract.DanglingOperator, Line: 4, Text: "bar +"},
		{Category: contract.DanglingOperator, Line: 5, Text: "baz."},
	}
	if diff := cmp.Diff(want, ws); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairLinesLastLineAccessor(t *testing.T) {
	c := newC(t)
	_, ws := c.RepairLines("x = getString(R.string.k")
	require.Len(t, ws, 1)
	assert.Equal(t, contract.BrokenAccessorCall, ws[0].Category)
}

func TestScan(t *testing.T) {
	c := newC(t)
	doc := strings.Join([]string{
		"int a = 1;",
		"s = getString(R.string.hello",
		"x = a +",
		"y.z.",
		"if (a > 0 {",
		"call(a, b",
		"void f() {",
		"g(",
	}, "\n")
	ws := c.Scan(doc)
	want := []contract.Warning{
		{Category: contract.BrokenAccessorCall, Line: 2, Text: "s = getString(R.string.hello"},
		{Category: contract.UnbalancedBracket, Line: 2, Text: "s = getString(R.string.hello"},
		{Category: contract.DanglingOperator, Line: 3, Text: "x = a +"},
		{Category: contract.DanglingOperator, Line: 4, Text: "y.z."},
		{Category: contract.UnbalancedBracket, Line: 6, Text: "call(a, b"},
	}
	if diff := cmp.Diff(want, ws); diff != "" {
		t.Fatalf("scan mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectTruncatedStrings(t *testing.T) {
	c := newC(t)
	doc := strings.Join([]string{
		`String s = "Hello`,
		`private int x;`,
		`String ok = "abc";`,
		`public void f() {`,
		`String cont = "a",`,
		`static int y;`,
		`String other = "open`,
		`x = 1;`,
	}, "\n")
	ws, cs := c.DetectTruncatedStrings(doc)
	require.Len(t, ws, 1)
	assert.Equal(t, contract.Warning{Category: contract.TruncatedString, Line: 1, Text: `String s = "Hello`}, ws[0])
	require.Len(t, cs, 1)
	assert.Equal(t, 1, cs[0].Line)
	assert.True(t, strings.HasPrefix(cs[0].Text, `String s = "Hello...<insert closing quote`))
}

func TestOpenLiteral(t *testing.T) {
	cases := map[string]bool{
		`"abc"`:            false,
		`"abc`:             true,
		`"a\"b"`:           false,
		`"a\"b`:            true,
		`c == '"' && x`:    false,
		`c == '\"' && "x`:  true,
		`no quotes at all`: false,
	}
	for in, want := range cases {
		assert.Equal(t, want, openLiteral(in), in)
	}
}

func TestNormalizeImportsOnce(t *testing.T) {
	c := newC(t)
	doc := "package a.b;\nimport java.util.List;\nclass A {}\n  package a.b;\n   import java.util.List;\nimport java.util.Map;\n"
	out := c.Normalize(doc)
	assert.Equal(t, 1, strings.Count(out, "import java.util.List;"))
	assert.Equal(t, 1, strings.Count(out, "package a.b;"))
	assert.Equal(t, "package a.b;\nimport java.util.List;\nclass A {}\nimport java.util.Map;\n", out)
}

func TestNormalizeSwitchIndent(t *testing.T) {
	c := newC(t)
	doc := strings.Join([]string{
		"    int before = 1;",
		"    switch (x) {",
		" case 1:",
		"        foo();",
		"  break;",
		"   default:",
		"    }",
		"  int after = 2;",
	}, "\n")
	out := strings.Split(strings.TrimSuffix(c.Normalize(doc), "\n"), "\n")
	want := []string{
		"    int before = 1;",
		"    switch (x) {",
		"            case 1:",
		"        foo();",
		"            break;",
		"            default:",
		"    }",
		"  int after = 2;",
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeTypeDeclAndBraces(t *testing.T) {
	c := newC(t)
	doc := strings.Join([]string{
		"public class CourseUtils {",
		"",
		"",
		"    void f()",
		"    {",
		"        g();",
		"    }",
		"}",
		"public class CourseUtils {",
		"    public static class Inner {",
		"    }",
	}, "\n")
	out := c.Normalize(doc)
	want := strings.Join([]string{
		"public class CourseUtils {",
		"",
		"    void f()",
		"    {",
		"        g();",
		"    public static class Inner {",
		"    }",
	}, "\n") + "\n"
	assert.Equal(t, want, out)
}

func TestNormalizeConfiguredTypeDecl(t *testing.T) {
	c, err := NewClassifier(Rules{TypeDecl: "final class Main"})
	require.NoError(t, err)
	out := c.Normalize("final class Main {\nint a;\nfinal class Main extends X {\n")
	assert.Equal(t, "final class Main {\nint a;\n", out)
}

func TestSwitchMachine(t *testing.T) {
	c := newC(t)
	m := switchMachine{indent: "  "}
	_, ok := m.step(c.Classify("case 1:"))
	assert.False(t, ok, "outside switch leaves case untouched")

	out, ok := m.step(c.Classify("switch (k) {"))
	require.True(t, ok)
	assert.Equal(t, "switch (k) {", out)
	assert.Equal(t, insideSwitch, m.state)

	out, _ = m.step(c.Classify("      default:"))
	assert.Equal(t, "  default:", out)
	_, ok = m.step(c.Classify("x();"))
	assert.False(t, ok)

	out, ok = m.step(c.Classify("  }"))
	require.True(t, ok)
	assert.Equal(t, "  }", out)
	assert.Equal(t, outsideSwitch, m.state)
}

func TestRebuildCollapsesDuplicateWarnings(t *testing.T) {
	c := newC(t)
	rep := c.Rebuild([]string{"```java\nclass A {\n", "String t = getString(R.string.title\nint x = 1;\n"})
	// Rebuild 不做围栏清洗；此处围栏行原样进入文档
	assert.Contains(t, rep.Document, "```java")
	want := []contract.Warning{
		{Category: contract.BrokenAccessorCall, Line: 3, Text: "String t = getString(R.string.title"},
		{Category: contract.UnbalancedBracket, Line: 3, Text: "String t = getString(R.string.title"},
	}
	if diff := cmp.Diff(want, rep.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, rep.Corrections)
}

func TestRebuildPlaceholdersProduceDocument(t *testing.T) {
	c := newC(t)
	rep := c.Rebuild([]string{"", "", ""})
	assert.Equal(t, "", rep.Document)
	assert.Empty(t, rep.Warnings)

	rep = c.Rebuild([]string{"int a;\n", "int b;\n", ""})
	assert.Equal(t, "int a;\nint b;\n", rep.Document)
}

func TestRebuildDoesNotMutateInput(t *testing.T) {
	c := newC(t)
	in := []string{"a;\nb;\n", "b;\nc;\n"}
	cp := append([]string(nil), in...)
	_ = c.Rebuild(in)
	assert.Equal(t, cp, in)
}

// 重复声明由规范化静默删除，不产生告警
func TestRebuildRedundantDeclarationsAreSilent(t *testing.T) {
	rep := newC(t).Rebuild([]string{
		"package a;\nimport java.util.List;\npublic class A {\n",
		"package a;\nimport java.util.List;\npublic class A {\n    int x;\n}\n",
	})
	assert.Equal(t, 1, strings.Count(rep.Document, "import java.util.List;"))
	assert.Equal(t, 1, strings.Count(rep.Document, "public class A {"))
	for _, w := range rep.Warnings {
		assert.NotEqual(t, contract.RedundantDeclaration, w.Category, w.String())
	}
}

func TestMergeWarningsSetSemantics(t *testing.T) {
	w := contract.Warning{Category: contract.DanglingOperator, Line: 2, Text: "a +"}
	got := MergeWarnings([]contract.Warning{w}, []contract.Warning{w, {Category: contract.BrokenAccessorCall, Line: 1, Text: "x"}})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Line)
}

func TestNewClassifierRejectsBlankKeywords(t *testing.T) {
	_, err := NewClassifier(Rules{DeclKeywords: []string{" ", ""}})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\r\nb\n"))
	assert.Equal(t, []string{""}, splitLines("\n"))
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a", "", "b"}, splitLines("a\n\nb"))
}
