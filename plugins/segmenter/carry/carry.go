package carry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llmsrc/pkg/contract"
)

// Options 为分块器的可选配置。
type Options struct {
	// Terminators: 判定“行已完整”的结尾集合（对去空白后的行做后缀匹配）。
	// 为空时采用默认 [";", "}", "])", "});"]。
	Terminators []string `json:"terminators"`
}

// Segmenter 以固定步长切块，并把块末的不完整行延后到下一块（Carry）。
type Segmenter struct {
	terms []string
}

// DefaultTerminators 完整性判定的默认结尾集合。
var DefaultTerminators = []string{";", "}", "])", "});"}

// New 创建分块器。
func New(opts *Options) *Segmenter {
	terms := DefaultTerminators
	if opts != nil && len(opts.Terminators) > 0 {
		terms = make([]string, 0, len(opts.Terminators))
		for _, t := range opts.Terminators {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}
	}
	return &Segmenter{terms: terms}
}

var _ contract.Segmenter = (*Segmenter)(nil)

// Complete 报告一行（去空白后）是否以完整语句结尾。空行视为完整，不作为 Carry。
func (s *Segmenter) Complete(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return true
	}
	for _, suf := range s.terms {
		if strings.HasSuffix(t, suf) {
			return true
		}
	}
	return false
}

// Segment 步长固定为 BlockSize，不因 Carry 调整：
//   - 候选块 = Carry + records[i : i+BlockSize]；
//   - 末行完整则原样产出并清空 Carry；
//   - 否则移出末行作为新的 Carry（去终止符），产出其余部分（可能为空块）。
//
// 最后一块之后残留的 Carry 不再成块，通过 Residual 返回。
func (s *Segmenter) Segment(ctx context.Context, records []contract.Record, limit contract.SegmentLimit) (contract.Segmentation, error) {
	var out contract.Segmentation
	if limit.BlockSize <= 0 {
		return out, fmt.Errorf("%w: segmenter: block size must be > 0", contract.ErrInvalidInput)
	}
	n := len(records)
	if n == 0 {
		return out, nil
	}
	fid := records[0].FileID
	if records[0].Index != 0 {
		return out, fmt.Errorf("segmenter: first index must be 0, got %d", records[0].Index)
	}
	for i := 1; i < n; i++ {
		if records[i].FileID != fid {
			return out, errors.New("segmenter: records must have the same FileID")
		}
		if records[i].Index != records[i-1].Index+1 {
			return out, errors.New("segmenter: record Index must be contiguous and strictly increasing")
		}
	}

	carry := ""
	for i := 0; i < n; i += limit.BlockSize {
		if err := ctx.Err(); err != nil {
			return contract.Segmentation{}, err
		}
		end := i + limit.BlockSize
		if end > n {
			end = n
		}
		lines := make([]string, 0, end-i)
		for _, r := range records[i:end] {
			lines = append(lines, r.Text)
		}
		b := contract.Block{
			FileID: fid,
			Index:  len(out.Blocks),
			Carry:  carry,
			From:   records[i].Index,
			To:     records[end-1].Index,
		}
		carry = ""
		if last := lines[len(lines)-1]; !s.Complete(last) {
			carry = strings.TrimRight(last, "\r\n")
			lines = lines[:len(lines)-1]
			b.To--
		}
		b.Lines = lines
		out.Blocks = append(out.Blocks, b)
	}
	out.Residual = carry
	return out, nil
}
