package lines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"llmsrc/pkg/contract"
)

// Options 为行拆分器的可选配置。
type Options struct {
	// MaxLineBytes: 单行最大字节数。0 表示不限制。
	MaxLineBytes int `json:"max_line_bytes"`
	// AllowExts: 允许处理的扩展名（大小写不敏感，含点）。
	// 为 nil 时采用默认 [".java", ".kt"]；显式空切片表示不限制。STDIN 不受限制。
	AllowExts []string `json:"allow_exts"`
	// RequireUTF8: 遇到非法 UTF-8 时报错。
	RequireUTF8 bool `json:"require_utf8"`
}

// Splitter 按行拆分源文件，保留每行的终止符。
type Splitter struct {
	maxBytes    int
	allow       map[string]struct{}
	requireUTF8 bool
}

// New 创建行拆分器。
func New(opts *Options) *Splitter {
	s := &Splitter{}
	if opts == nil || opts.AllowExts == nil {
		s.allow = map[string]struct{}{".java": {}, ".kt": {}}
	} else if len(opts.AllowExts) > 0 {
		s.allow = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e == "" {
				continue
			}
			s.allow[strings.ToLower(e)] = struct{}{}
		}
	}
	if opts != nil {
		if opts.MaxLineBytes > 0 {
			s.maxBytes = opts.MaxLineBytes
		}
		s.requireUTF8 = opts.RequireUTF8
	}
	return s
}

var _ contract.Splitter = (*Splitter)(nil)

const bom = "\ufeff"

// Split 将单个源文件拆分为 []Record（每行一条，Index 自 0 递增）。
// 首行的 UTF-8 BOM 被去除；其余字节原样保留。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Record, error) {
	if s.allow != nil && fileID != "stdin" {
		ext := strings.ToLower(path.Ext(string(fileID)))
		if _, ok := s.allow[ext]; !ok {
			return nil, fmt.Errorf("%w: %s: extension %q not handled", contract.ErrInvalidInput, fileID, ext)
		}
	}
	br := bufio.NewReader(r)
	var recs []contract.Record
	for idx := contract.Index(0); ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" {
			break
		}
		if idx == 0 {
			line = strings.TrimPrefix(line, bom)
		}
		if s.maxBytes > 0 && len(line) > s.maxBytes {
			return nil, fmt.Errorf("%w: %s:%d: line is %d bytes (max %d)", contract.ErrBudgetExceeded, fileID, idx+1, len(line), s.maxBytes)
		}
		if s.requireUTF8 && !utf8.ValidString(line) {
			return nil, fmt.Errorf("%w: %s:%d: invalid UTF-8", contract.ErrInvalidInput, fileID, idx+1)
		}
		recs = append(recs, contract.Record{Index: idx, FileID: fileID, Text: line})
		if err != nil {
			break
		}
	}
	return recs, nil
}
