package rebuild

import "strings"

// Dedup 按块序拼接结果，并去除块边界处被模型重复输出的行：
// 当前结果的首行与前一结果（已去重）的末行去空白后相同，则丢弃当前首行。
// 空字符串视为尚未完成的占位，不参与比较也不产生分隔。
func Dedup(results []string) string {
	var sb strings.Builder
	prev := ""
	for i, r := range results {
		if i > 0 && prev != "" && r != "" {
			if firstLine(r) == lastLine(prev) {
				r = dropFirstLine(r)
			}
		}
		prev = r
		if r == "" {
			continue
		}
		if sb.Len() > 0 && !endsWithNewline(sb.String()) {
			sb.WriteByte('\n')
		}
		sb.WriteString(r)
	}
	return sb.String()
}

func firstLine(s string) string {
	ls := splitLines(s)
	if len(ls) == 0 {
		return ""
	}
	return strings.TrimSpace(ls[0])
}

func lastLine(s string) string {
	ls := splitLines(s)
	if len(ls) == 0 {
		return ""
	}
	return strings.TrimSpace(ls[len(ls)-1])
}

// dropFirstLine 去掉首行（含其终止符），其余原样保留。
func dropFirstLine(s string) string {
	i := strings.IndexAny(s, "\r\n")
	if i < 0 {
		return ""
	}
	if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
		i++
	}
	return s[i+1:]
}

func endsWithNewline(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}
