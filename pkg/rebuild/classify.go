package rebuild

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"llmsrc/pkg/contract"
)

// Rules: 重建规则。零值字段回落到 DefaultRules 的对应值。
type Rules struct {
	// AccessorPrefix: 资源访问器调用前缀（字面量），其后紧跟资源键。
	AccessorPrefix string `json:"accessor_prefix,omitempty"`
	// DeclKeywords: 声明起始关键字；用于判断截断字符串的下一行。
	DeclKeywords []string `json:"decl_keywords,omitempty"`
	// TypeDecl: 指定的顶层类型声明前缀；为空时取文档中首个 public class 的类名。
	TypeDecl string `json:"type_decl,omitempty"`
	// SwitchIndent: switch 内 case/default/break 的规范缩进（空格数）。
	SwitchIndent int `json:"switch_indent,omitempty"`
	// CorrectionHint: 建议修正的占位后缀。
	CorrectionHint string `json:"correction_hint,omitempty"`
}

// DefaultRules 返回 Android/Java 源码的默认规则。
func DefaultRules() Rules {
	return Rules{
		AccessorPrefix: "getString(R.string.",
		DeclKeywords:   []string{"private", "public", "protected", "static"},
		SwitchIndent:   12,
		CorrectionHint: "...<insert closing quote, + or , or ); as appropriate>",
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.AccessorPrefix == "" {
		r.AccessorPrefix = d.AccessorPrefix
	}
	if len(r.DeclKeywords) == 0 {
		r.DeclKeywords = d.DeclKeywords
	}
	if r.SwitchIndent <= 0 {
		r.SwitchIndent = d.SwitchIndent
	}
	if r.CorrectionHint == "" {
		r.CorrectionHint = d.CorrectionHint
	}
	return r
}

// Signal: 单行特征位集合。各修复/扫描步骤只查询该集合，不各自重做匹配。
type Signal uint32

const (
	// SigAccessorOpen: 含访问器调用且未以 ");" 收尾（行合并候选）。
	SigAccessorOpen Signal = 1 << iota
	// SigAccessorCut: 行恰好结束于资源键之后。
	SigAccessorCut
	// SigOpenParenEnd: 以 "(" 结尾。
	SigOpenParenEnd
	// SigOperatorEnd: 以 "+" 或 "." 结尾。
	SigOperatorEnd
	// SigUnbalanced: ( 或 { 多于对应闭括号，且不以开括号结尾。
	SigUnbalanced
	// SigOpenLiteral: 双引号字面量未闭合，且不以续行形式结尾。
	SigOpenLiteral
	// SigDeclStart: 以声明关键字开头。
	SigDeclStart
	SigPackage
	SigImport
	SigTypeDecl
	SigSwitch
	SigCaseLabel
	SigBreak
	// SigLoneBrace: 整行仅为 "{" 或 "}"。
	SigLoneBrace
	SigCloseBrace
)

// Has 报告是否含任一给定位。
func (s Signal) Has(x Signal) bool { return s&x != 0 }

// Line: 一行及其分类结果。
type Line struct {
	Raw     string
	Left    string // 去左侧空白
	Trimmed string // 去两侧空白
	Sig     Signal
	// TypeName: SigTypeDecl 时的类型标识（类名或指定前缀）。
	TypeName string
}

// Classifier: 依据 Rules 对行分类。构造后只读，可并发使用。
type Classifier struct {
	rules        Rules
	accessorOpen *regexp.Regexp
	accessorCut  *regexp.Regexp
	declStart    *regexp.Regexp
	typeDecl     *regexp.Regexp
	switchIndent string
}

var publicClass = regexp.MustCompile(`^public\s+(?:(?:final|abstract|static)\s+)*class\s+([A-Za-z_][A-Za-z0-9_]*)`)

// NewClassifier 编译规则。
func NewClassifier(r Rules) (*Classifier, error) {
	r = r.withDefaults()
	key := regexp.QuoteMeta(r.AccessorPrefix) + `[A-Za-z0-9_]*`
	kws := make([]string, 0, len(r.DeclKeywords))
	for _, k := range r.DeclKeywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		kws = append(kws, regexp.QuoteMeta(k))
	}
	if len(kws) == 0 {
		return nil, fmt.Errorf("%w: decl_keywords empty", contract.ErrInvalidInput)
	}
	c := &Classifier{
		rules:        r,
		accessorOpen: regexp.MustCompile(`^(.*` + key + `)( *[+)]*)?$`),
		accessorCut:  regexp.MustCompile(`^.*` + key + `$`),
		declStart:    regexp.MustCompile(`^(?:` + strings.Join(kws, "|") + `)`),
		switchIndent: strings.Repeat(" ", r.SwitchIndent),
	}
	if r.TypeDecl != "" {
		c.typeDecl = regexp.MustCompile(`^` + regexp.QuoteMeta(r.TypeDecl))
	}
	return c, nil
}

// MustClassifier 用于默认规则等不会失败的场景。
func MustClassifier(r Rules) *Classifier {
	c, err := NewClassifier(r)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules 返回补全默认值后的规则。
func (c *Classifier) Rules() Rules { return c.rules }

// Classify 计算单行（不含终止符）的特征位。
func (c *Classifier) Classify(raw string) Line {
	ln := Line{
		Raw:     raw,
		Left:    strings.TrimLeftFunc(raw, unicode.IsSpace),
		Trimmed: strings.TrimSpace(raw),
	}
	t := ln.Trimmed
	var s Signal
	if c.accessorOpen.MatchString(t) && !strings.HasSuffix(t, ");") {
		s |= SigAccessorOpen
	}
	if c.accessorCut.MatchString(t) {
		s |= SigAccessorCut
	}
	switch {
	case strings.HasSuffix(t, "("):
		s |= SigOpenParenEnd
	case strings.HasSuffix(t, "+"), strings.HasSuffix(t, "."):
		s |= SigOperatorEnd
	}
	opensMore := strings.Count(t, "(") > strings.Count(t, ")") || strings.Count(t, "{") > strings.Count(t, "}")
	if opensMore && !strings.HasSuffix(t, "{") && !strings.HasSuffix(t, "(") {
		s |= SigUnbalanced
	}
	if openLiteral(t) && !strings.HasSuffix(t, `",`) && !strings.HasSuffix(t, `"+`) && !strings.HasSuffix(t, `");`) {
		s |= SigOpenLiteral
	}
	if c.declStart.MatchString(t) {
		s |= SigDeclStart
	}

	l := ln.Left
	switch {
	case strings.HasPrefix(l, "package "):
		s |= SigPackage
	case strings.HasPrefix(l, "import "):
		s |= SigImport
	}
	if c.typeDecl != nil {
		if c.typeDecl.MatchString(l) {
			s |= SigTypeDecl
			ln.TypeName = c.rules.TypeDecl
		}
	} else if m := publicClass.FindStringSubmatch(l); m != nil {
		s |= SigTypeDecl
		ln.TypeName = m[1]
	}
	if strings.Contains(l, "switch") {
		s |= SigSwitch
	}
	if strings.HasPrefix(l, "case ") || strings.HasPrefix(l, "default:") {
		s |= SigCaseLabel
	}
	if strings.HasPrefix(l, "break;") {
		s |= SigBreak
	}
	if t == "{" || t == "}" {
		s |= SigLoneBrace
	}
	if t == "}" {
		s |= SigCloseBrace
	}
	ln.Sig = s
	return ln
}

// openLiteral: 行内是否有未闭合的双引号字面量（忽略转义与字符字面量）。
func openLiteral(s string) bool {
	open := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if open {
				i++
			}
		case '\'':
			if open {
				continue
			}
			if i+3 < len(s) && s[i+1] == '\\' && s[i+3] == '\'' {
				i += 3
			} else if i+2 < len(s) && s[i+2] == '\'' {
				i += 2
			}
		case '"':
			open = !open
		}
	}
	return open
}

// splitLines 按 \n、\r\n、\r 切行；末尾终止符不产生空行。
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
