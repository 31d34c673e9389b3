package androidxml

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"llmsrc/pkg/contract"
)

// Options: Android strings.xml 解析选项。
type Options struct {
	// KeepEscapes: 保留 Android 反斜杠转义（\' \" \@ \?）原样；默认反转义。
	KeepEscapes bool `json:"keep_escapes"`
	// SkipUntranslatable: 跳过 translatable="false" 的条目。
	SkipUntranslatable bool `json:"skip_untranslatable"`
}

type loader struct {
	opts Options
}

// New 从原样 JSON Options 创建加载器。
func New(raw json.RawMessage) (contract.MappingLoader, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("androidxml options: %w", err)
		}
	}
	return &loader{opts: o}, nil
}

type stringElem struct {
	Name         string `xml:"name,attr"`
	Translatable string `xml:"translatable,attr"`
	Text         string `xml:",chardata"`
}

var androidEscapes = strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\@`, `@`, `\?`, `?`)

// Load 流式解析 <resources> 下的 <string name="...">text</string>；
// 文本去两侧空白并做 NFC 归一。其他元素（plurals、string-array 等）忽略。
func (l *loader) Load(ctx context.Context, r io.Reader) (contract.Mapping, error) {
	dec := xml.NewDecoder(r)
	var entries []contract.MappingEntry
	for {
		if err := ctx.Err(); err != nil {
			return contract.Mapping{}, err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return contract.Mapping{}, fmt.Errorf("%w: strings.xml: %v", contract.ErrInvalidInput, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "string" {
			continue
		}
		var el stringElem
		if err := dec.DecodeElement(&el, &se); err != nil {
			return contract.Mapping{}, fmt.Errorf("%w: strings.xml: %v", contract.ErrInvalidInput, err)
		}
		if l.opts.SkipUntranslatable && el.Translatable == "false" {
			continue
		}
		text := strings.TrimSpace(el.Text)
		if !l.opts.KeepEscapes {
			text = androidEscapes.Replace(text)
		}
		entries = append(entries, contract.MappingEntry{
			Key:  strings.TrimSpace(el.Name),
			Text: norm.NFC.String(text),
		})
	}
	return contract.NewMapping(entries), nil
}
