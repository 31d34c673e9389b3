package mock

import (
	"context"
	"encoding/json"
	"testing"

	"llmsrc/pkg/contract"
)

func testPrompt(code string) contract.Prompt {
	user := contract.MappingSectionHeader + "\n" +
		"Excerpt of strings.xml (key => text):\n" +
		"hello => Hello\n" +
		"bye_msg => Goodbye!\n\n" +
		contract.BlockSectionHeader + "\n" +
		"Java block to process:\n" + code
	return contract.ChatPrompt{{Role: "system", Content: "sys"}, {Role: "user", Content: user}}
}

// TestEcho 默认模式原样返回块文本（含 Carry）
func TestEcho(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b := contract.Block{Carry: "foo(a,", Lines: []string{"  b);\n", "x();\n"}}
	raw, err := c.Invoke(context.Background(), b, testPrompt(b.Text()))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if raw.Text != "foo(a,\n  b);\nx();\n" {
		t.Fatalf("unexpected text %q", raw.Text)
	}
}

// TestI18n 替换映射中出现的字面量
func TestI18n(t *testing.T) {
	c, _ := New(json.RawMessage(`{"mode":"i18n"}`))
	b := contract.Block{Lines: []string{"setText(\"Hello\");\n", "toast(\"Goodbye!\" + n);\n", "log(\"Hello world\");\n"}}
	raw, err := c.Invoke(context.Background(), b, testPrompt(b.Text()))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	want := "setText(getString(R.string.hello));\ntoast(getString(R.string.bye_msg) + n);\nlog(\"Hello world\");\n"
	if raw.Text != want {
		t.Fatalf("got %q want %q", raw.Text, want)
	}
}

// TestFence 围栏包裹
func TestFence(t *testing.T) {
	c, _ := New(json.RawMessage(`{"fence":true}`))
	raw, _ := c.Invoke(context.Background(), contract.Block{Lines: []string{"a;"}}, contract.TextPrompt(""))
	if raw.Text != "```java\na;\n```" {
		t.Fatalf("unexpected text %q", raw.Text)
	}
}

// TestParseMapping 忽略说明行与代码段内的伪映射
func TestParseMapping(t *testing.T) {
	es := ParseMapping(testPrompt("k => v\n"))
	if len(es) != 2 || es[0].Key != "hello" || es[1].Text != "Goodbye!" {
		t.Fatalf("unexpected entries %#v", es)
	}
	if got := ParseMapping(contract.TextPrompt("no headers")); len(got) != 0 {
		t.Fatalf("expected none, got %#v", got)
	}
}

// TestUnknownMode 未知模式报错
func TestUnknownMode(t *testing.T) {
	if _, err := New(json.RawMessage(`{"mode":"translate"}`)); err == nil {
		t.Fatalf("expected error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := New(nil)
	if _, err := c.Invoke(ctx, contract.Block{}, nil); err == nil {
		t.Fatalf("expected ctx error")
	}
}
