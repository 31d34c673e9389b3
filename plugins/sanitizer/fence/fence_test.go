package fence

import (
	"context"
	"errors"
	"testing"

	"llmsrc/pkg/contract"
)

// TestSanitizeStripsFences 去除围栏行，其余原样
func TestSanitizeStripsFences(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct{ in, want string }{
		{"```java\nint a;\n  ```\n", "int a;\n"},
		{"  ```\nx;\r\ny;\n```", "x;\r\ny;\n"},
		{"int a;\n    b();", "int a;\n    b();"},
		{"a;\n```kotlin\n\nb;\n", "a;\n\nb;\n"},
	}
	for _, c := range cases {
		got, err := s.Sanitize(context.Background(), contract.Raw{Text: c.in})
		if err != nil {
			t.Fatalf("sanitize %q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("sanitize %q = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestSanitizeRoundTrip 无围栏时原样返回
func TestSanitizeRoundTrip(t *testing.T) {
	s, _ := New(nil)
	in := "package a;\n\nclass A {\n  // `inline` code\n}\n"
	got, err := s.Sanitize(context.Background(), contract.Raw{Text: in})
	if err != nil || got != in {
		t.Fatalf("round trip: %q %v", got, err)
	}
}

// TestSanitizeEmpty 仅有围栏或空白时返回剩余文本，不报错
func TestSanitizeEmpty(t *testing.T) {
	s, _ := New(nil)
	cases := []struct{ in, want string }{
		{"", ""},
		{"```\n```", ""},
		{"  \n", "  \n"},
		{"```java\n\n\n```\n", "\n\n"},
	}
	for _, c := range cases {
		got, err := s.Sanitize(context.Background(), contract.Raw{Text: c.in})
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestSanitizeCustomMarkers 自定义标记
func TestSanitizeCustomMarkers(t *testing.T) {
	s, err := New([]byte(`{"markers":["~~~"," "]}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, _ := s.Sanitize(context.Background(), contract.Raw{Text: "~~~\nx;\n```\n"})
	if got != "x;\n```\n" {
		t.Fatalf("custom: %q", got)
	}
	if _, err := New([]byte(`{"markers":[" "]}`)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("blank markers: %v", err)
	}
	if _, err := New([]byte(`{bad`)); err == nil {
		t.Fatalf("bad json accepted")
	}
}
