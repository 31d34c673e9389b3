package fence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmsrc/pkg/contract"
)

// Options: 围栏标记集合。为空时采用默认 ["```"]。
type Options struct {
	Markers []string `json:"markers"`
}

type sanitizer struct {
	markers []string
}

// New 从原样 JSON Options 创建清洗器。
func New(raw json.RawMessage) (contract.Sanitizer, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("fence options: %w", err)
		}
	}
	s := &sanitizer{markers: []string{"```"}}
	if len(opts.Markers) > 0 {
		s.markers = s.markers[:0]
		for _, m := range opts.Markers {
			if m = strings.TrimSpace(m); m != "" {
				s.markers = append(s.markers, m)
			}
		}
	}
	if len(s.markers) == 0 {
		return nil, fmt.Errorf("%w: fence markers empty", contract.ErrInvalidInput)
	}
	return s, nil
}

// Sanitize 删除所有以围栏标记开头（去左右空白后）的行，其余行连同终止符原样保留。
// 纯函数：不因内容为空而报错。
func (s *sanitizer) Sanitize(ctx context.Context, raw contract.Raw) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	var sb strings.Builder
	sb.Grow(len(raw.Text))
	rest := raw.Text
	for rest != "" {
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			rest = ""
		}
		if s.isFence(line) {
			continue
		}
		sb.WriteString(line)
	}
	return sb.String(), nil
}

func (s *sanitizer) isFence(line string) bool {
	t := strings.TrimSpace(line)
	for _, m := range s.markers {
		if strings.HasPrefix(t, m) {
			return true
		}
	}
	return false
}
