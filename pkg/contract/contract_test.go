package contract

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"本地分隔符", filepath.Join("a", "b", "c"), "a/b/c"},
		{"父目录", "./x/../y", "y"},
		{"空串", "", "."},
		{"Windows路径", "C:\\Users\\test\\App.java", "C:/Users/test/App.java"},
		{"清理多余斜杠", "src//main///App.java", "src/main/App.java"},
		{"混合分隔符", "src\\..\\test/./data\\\\App.java", "test/data/App.java"},
		{"中文路径", "项目\\源码/工具.java", "项目/源码/工具.java"},
		{"仅分隔符", "\\\\\\///", "/"},
		{"复杂父目录", "a\\b\\..\\..\\..\\d", "../d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFileID(tt.input); string(got) != tt.expected {
				t.Errorf("NormalizeFileID(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestBlockText Carry 与源切片之间补换行，其余行原样拼接。
func TestBlockText(t *testing.T) {
	b := Block{Carry: "foo(a,", Lines: []string{"b);\n", "bar();"}}
	assert.Equal(t, "foo(a,\nb);\nbar();", b.Text())
	assert.Equal(t, 3, b.LineCount())

	b = Block{Lines: []string{"x;\n"}}
	assert.Equal(t, "x;\n", b.Text())
	assert.Equal(t, 1, b.LineCount())
}

func TestMappingLastKeyWins(t *testing.T) {
	m := NewMapping([]MappingEntry{
		{Key: "hello", Text: "Hello"},
		{Key: "empty", Text: ""},
		{Key: "hello_again", Text: "Hello"},
		{Key: "bye", Text: "Bye"},
	})
	require.Equal(t, 2, m.Len())
	k, ok := m.Lookup("Hello")
	require.True(t, ok)
	assert.Equal(t, "hello_again", k)
	assert.Equal(t, "Hello", m.Entries[0].Text)
	_, ok = m.Lookup("missing")
	assert.False(t, ok)
	assert.Len(t, m.Excerpt(1), 1)
	assert.Len(t, m.Excerpt(0), 2)

	// 零值（未经 NewMapping）也可查询
	raw := Mapping{Entries: []MappingEntry{{Key: "k", Text: "t"}}}
	k, ok = raw.Lookup("t")
	assert.True(t, ok)
	assert.Equal(t, "k", k)
}

func TestCategoryText(t *testing.T) {
	w := Warning{Category: TruncatedString, Line: 7, Text: `String s = "abc`}
	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"truncated_string","line":7,"text":"String s = \"abc"}`, string(b))

	y, err := yaml.Marshal(w)
	require.NoError(t, err)
	var back Warning
	require.NoError(t, yaml.Unmarshal(y, &back))
	assert.Equal(t, w, back)

	var c Category
	err = c.UnmarshalText([]byte("nope"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = Category(99).MarshalText()
	assert.Error(t, err)
}

func TestSortWarnings(t *testing.T) {
	ws := []Warning{
		{Category: UnbalancedBracket, Line: 3, Text: "b"},
		{Category: BrokenAccessorCall, Line: 3, Text: "a"},
		{Category: DanglingOperator, Line: 1, Text: "c"},
	}
	SortWarnings(ws)
	assert.Equal(t, []int{1, 3, 3}, []int{ws[0].Line, ws[1].Line, ws[2].Line})
	assert.Equal(t, BrokenAccessorCall, ws[1].Category)
}
