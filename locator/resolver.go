package locator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

// ErrNoSnapshot 目标引用了高亮编号或 handle,但当前没有快照
var ErrNoSnapshot = errors.New("no current snapshot")

// Class 需要特殊执行协议的目标类别
type Class int

const (
	ClassGeneral Class = iota
	ClassSearchBox
	ClassCheckbox
)

func (c Class) String() string {
	switch c {
	case ClassSearchBox:
		return "search_box"
	case ClassCheckbox:
		return "checkbox"
	}
	return "general"
}

var (
	highlightRef = regexp.MustCompile(`(?i)^(?:(?:clickable|input)?\s*element\s*)?(?:#|\[)?\s*(\d+)\s*\]?$`)
	attrPair     = regexp.MustCompile(`(?i)^(placeholder|aria-label|name|id|title)\s*[=:]\s*["']?(.*?)["']?$`)
	cssLike      = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9-]*)?(?:[#.\[][^\s]|:[a-z-]+\()|\s>\s|\]\s*$`)
	handleLike   = regexp.MustCompile(`^(?:element|text):\d+$`)

	// 描述中的元素类型词 → 推断的标签
	tagWords = map[string]string{
		"button":   "button",
		"btn":      "button",
		"link":     "a",
		"input":    "input",
		"field":    "input",
		"textbox":  "input",
		"checkbox": "input",
		"dropdown": "select",
		"select":   "select",
		"tab":      "*",
		"header":   "*",
	}

	defaultTextTags = []string{"button", "a"}
)

// Resolver 针对一个快照解析目标描述
type Resolver struct {
	// Snapshot 当前快照,用于高亮编号与 handle
	Snapshot *snapshot.Snapshot
	// SearchPlaceholder 搜索框的 placeholder,默认 "Search"
	SearchPlaceholder string
}

func (r *Resolver) searchPlaceholder() string {
	if r.SearchPlaceholder == "" {
		return "Search"
	}
	return r.SearchPlaceholder
}

// Resolve 返回按优先级排序的候选定位器,最具体的在前;可能为空。
// 过期的 handle 返回 snapshot.ErrStaleHandle。
func (r *Resolver) Resolve(raw string) ([]Locator, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return nil, nil
	}

	if el, matched, err := r.lookupElement(target); matched {
		if err != nil {
			return nil, err
		}
		return dedupe(r.fromElement(el)), nil
	}

	var out []Locator
	switch {
	case strings.HasPrefix(target, "xpath="):
		return []Locator{XPath(strings.TrimPrefix(target, "xpath="))}, nil
	case strings.HasPrefix(target, "css="):
		return []Locator{CSS(strings.TrimPrefix(target, "css="))}, nil
	case strings.HasPrefix(target, "/") || strings.HasPrefix(target, "(/"):
		return []Locator{XPath(target)}, nil
	case cssLike.MatchString(target):
		// 具体的 CSS 先原样尝试,再退回到文本策略
		out = append(out, CSS(target))
		if text := textFromCSS(target); text != "" {
			out = append(out, r.fromText(text)...)
		}
		return dedupe(out), nil
	}

	if m := attrPair.FindStringSubmatch(target); m != nil && strings.TrimSpace(m[2]) != "" {
		attr := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		out = append(out, AttributeExact("", attr, value))
		out = append(out, r.fromText(value)...)
		return dedupe(out), nil
	}

	return dedupe(r.fromText(target)), nil
}

// Classify 判断目标是否走搜索框或复选框协议
func (r *Resolver) Classify(raw string) Class {
	target := strings.TrimSpace(raw)
	lower := strings.ToLower(target)

	if el, matched, err := r.lookupElement(target); matched {
		if err != nil || el == nil {
			return ClassGeneral
		}
		if el.Tag == "input" && strings.EqualFold(el.Attributes["type"], "checkbox") ||
			strings.EqualFold(el.Attributes["role"], "checkbox") {
			return ClassCheckbox
		}
		if strings.EqualFold(strings.TrimSpace(el.Attributes["placeholder"]), r.searchPlaceholder()) {
			return ClassSearchBox
		}
		return ClassGeneral
	}

	search := strings.ToLower(r.searchPlaceholder())
	switch {
	case strings.Contains(lower, "checkbox"):
		return ClassCheckbox
	case strings.Contains(lower, "placeholder") && strings.Contains(lower, search):
		return ClassSearchBox
	case lower == search, lower == search+" box", lower == search+" input", lower == search+" field", lower == search+" bar":
		return ClassSearchBox
	}
	return ClassGeneral
}

// lookupElement matched 表示 target 是高亮编号或 handle 形式
func (r *Resolver) lookupElement(target string) (*snapshot.ElementNode, bool, error) {
	if handleLike.MatchString(target) {
		h, err := snapshot.ParseHandle(target)
		if err != nil {
			return nil, true, err
		}
		if r.Snapshot == nil {
			return nil, true, fmt.Errorf("%w: cannot resolve %s", ErrNoSnapshot, target)
		}
		el, err := r.Snapshot.Element(h)
		return el, true, err
	}

	m := highlightRef.FindStringSubmatch(target)
	if m == nil {
		return nil, false, nil
	}
	idx, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return nil, true, fmt.Errorf("invalid element index %q", target)
	}
	// 纯数字也可能是页面文本(年份、页码),编号不存在时交给文本策略
	bare := m[1] == target
	if r.Snapshot == nil {
		if bare {
			return nil, false, nil
		}
		return nil, true, fmt.Errorf("%w: cannot resolve element #%d", ErrNoSnapshot, idx)
	}
	_, el, ok := r.Snapshot.ByHighlight(uint(idx))
	if !ok {
		if bare {
			return nil, false, nil
		}
		return nil, true, fmt.Errorf("element #%d not in current snapshot (%d interactive elements)", idx, r.Snapshot.HighlightCount())
	}
	return el, true, nil
}

// fromElement 快照元素的 ref 优先,属性和文本作为页面重新渲染后的兜底
func (r *Resolver) fromElement(el *snapshot.ElementNode) []Locator {
	var out []Locator
	if el.Ref > 0 {
		out = append(out, Ref(el.Ref))
	}
	for _, attr := range []string{"id", "placeholder", "aria-label", "name"} {
		if v := strings.TrimSpace(el.Attributes[attr]); v != "" {
			out = append(out, AttributeExact(el.Tag, attr, v))
		}
	}
	if text := r.Snapshot.TextOf(el); text != "" && len([]rune(text)) <= 120 {
		out = append(out, TagText(el.Tag, text))
	}
	return out
}

// fromText 自由文本: 精确属性 → 标签+文本 → class 包含 → 全局文本扫描
func (r *Resolver) fromText(raw string) []Locator {
	tag, text := inferTag(unquote(raw))
	if text == "" {
		return nil
	}

	var out []Locator
	for _, attr := range []string{"placeholder", "aria-label", "name"} {
		out = append(out, AttributeExact(tagOrAny(tag), attr, text))
	}
	if !strings.ContainsAny(text, " \t") {
		out = append(out, AttributeExact(tagOrAny(tag), "id", text))
	}

	if tag != "" {
		out = append(out, TagText(tag, text))
	} else {
		for _, t := range defaultTextTags {
			out = append(out, TagText(t, text))
		}
	}

	if slug := classSlug(text); slug != "" {
		out = append(out, ClassContains(slug))
	}
	out = append(out, TextScan(text))
	return out
}

func tagOrAny(tag string) string {
	if tag == "*" {
		return ""
	}
	return tag
}

// inferTag 从 "Save to List button" / "the Search input" 里取出标签和剩余文本
func inferTag(s string) (string, string) {
	words := strings.Fields(s)
	if len(words) < 2 {
		return "", strings.TrimSpace(s)
	}
	var tag string
	kept := make([]string, 0, len(words))
	for i, w := range words {
		lw := strings.ToLower(strings.Trim(w, `"'`))
		if t, ok := tagWords[lw]; ok && tag == "" && (i == 0 || i == len(words)-1) {
			tag = t
			continue
		}
		if i == 0 && (lw == "the" || lw == "a") {
			continue
		}
		kept = append(kept, w)
	}
	text := unquote(strings.Join(kept, " "))
	if text == "" {
		return "", strings.TrimSpace(s)
	}
	return tag, text
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// classSlug 短文本转成 class 片段,如 "Save to List" → "save-to-list"
func classSlug(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(words) > 4 {
		return ""
	}
	return strings.Join(words, "-")
}

var cssTextAttr = regexp.MustCompile(`\[(?:placeholder|aria-label|title)\*?=["']?([^"'\]]+)["']?\]`)

// textFromCSS 从 CSS 中抽取可读文本,作为原样选择器失效时的兜底
func textFromCSS(css string) string {
	if m := cssTextAttr.FindStringSubmatch(css); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func dedupe(in []Locator) []Locator {
	seen := make(map[string]bool, len(in))
	out := make([]Locator, 0, len(in))
	for _, l := range in {
		key := string(l.Kind) + "|" + l.Expr
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
