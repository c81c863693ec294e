// Package locator 把决策函数给出的目标描述转换为有序的具体定位器列表
package locator

import (
	"fmt"
	"strings"
)

// Kind 定位器语法
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// Strategy 定位器的来源策略,用于日志和排查
type Strategy string

const (
	StrategyVerbatim       Strategy = "verbatim"
	StrategyRef            Strategy = "ref"
	StrategyAttributeExact Strategy = "attribute_exact"
	StrategyTagText        Strategy = "tag_text"
	StrategyClassContains  Strategy = "class_contains"
	StrategyTextScan       Strategy = "text_scan"
)

// Locator 一个具体的元素定位方式
type Locator struct {
	Strategy Strategy `json:"strategy"`
	Kind     Kind     `json:"kind"`
	Expr     string   `json:"expr"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s(%s %s)", l.Strategy, l.Kind, l.Expr)
}

// CSS 原样使用的 CSS 选择器
func CSS(expr string) Locator {
	return Locator{Strategy: StrategyVerbatim, Kind: KindCSS, Expr: expr}
}

// XPath 原样使用的 XPath 表达式
func XPath(expr string) Locator {
	return Locator{Strategy: StrategyVerbatim, Kind: KindXPath, Expr: expr}
}

// Ref 采集脚本写入的 data-wing-ref 编号
func Ref(ref int) Locator {
	return Locator{Strategy: StrategyRef, Kind: KindCSS, Expr: fmt.Sprintf(`[data-wing-ref="%d"]`, ref)}
}

// AttributeExact tag 可为空,表示任意元素
func AttributeExact(tag, attr, value string) Locator {
	return Locator{
		Strategy: StrategyAttributeExact,
		Kind:     KindCSS,
		Expr:     fmt.Sprintf(`%s[%s=%s]`, tag, attr, cssString(value)),
	}
}

// TagText 指定标签且文本包含 text
func TagText(tag, text string) Locator {
	return Locator{
		Strategy: StrategyTagText,
		Kind:     KindXPath,
		Expr:     fmt.Sprintf(`//%s[contains(normalize-space(.), %s)]`, tag, xpathLiteral(text)),
	}
}

// ClassContains class 属性包含 fragment
func ClassContains(fragment string) Locator {
	return Locator{
		Strategy: StrategyClassContains,
		Kind:     KindCSS,
		Expr:     fmt.Sprintf(`[class*=%s]`, cssString(fragment)),
	}
}

// TextScan 在所有元素中查找文本包含 text 的最内层元素
func TextScan(text string) Locator {
	lit := xpathLiteral(text)
	return Locator{
		Strategy: StrategyTextScan,
		Kind:     KindXPath,
		Expr:     fmt.Sprintf(`//body//*[contains(normalize-space(.), %s) and not(*[contains(normalize-space(.), %s)])]`, lit, lit),
	}
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ")
	return `"` + r.Replace(s) + `"`
}

// xpathLiteral XPath 1.0 没有转义,同时含两种引号时用 concat 拼接
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
