package contract

import (
	"context"
	"io"
)

// MappingEntry: 一条 文本→资源键 的映射。
type MappingEntry struct {
	Key  string
	Text string
}

// Mapping: 有序的资源映射（按文本首次出现的顺序）；同一文本重复出现时以最后一个键为准。
type Mapping struct {
	Entries []MappingEntry
	index   map[string]int
}

// NewMapping 按顺序构建映射；重复文本覆盖键但保持原位置，空文本/空键忽略。
func NewMapping(entries []MappingEntry) Mapping {
	m := Mapping{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Text == "" || e.Key == "" {
			continue
		}
		if i, dup := m.index[e.Text]; dup {
			m.Entries[i].Key = e.Key
			continue
		}
		m.index[e.Text] = len(m.Entries)
		m.Entries = append(m.Entries, e)
	}
	return m
}

// Len 返回条目数。
func (m Mapping) Len() int { return len(m.Entries) }

// Lookup 按文本查找资源键。
func (m Mapping) Lookup(text string) (string, bool) {
	if m.index == nil {
		for _, e := range m.Entries {
			if e.Text == text {
				return e.Key, true
			}
		}
		return "", false
	}
	i, ok := m.index[text]
	if !ok {
		return "", false
	}
	return m.Entries[i].Key, true
}

// Excerpt 返回前 n 条（n<=0 表示全部）。
func (m Mapping) Excerpt(n int) []MappingEntry {
	if n <= 0 || n >= len(m.Entries) {
		return m.Entries
	}
	return m.Entries[:n]
}

// MappingLoader: 从资源文件字节流解析映射。
type MappingLoader interface {
	Load(ctx context.Context, r io.Reader) (Mapping, error)
}
