package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromHTML 把静态 HTML 转成原始节点树,返回 body。
// 没有布局引擎,可见性只依据内联 style、hidden 属性和 input[type=hidden] 推断:
// display:none 的元素及其后代尺寸为 0,visibility 向下继承。
func FromHTML(html string) (*RawNode, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return nil, nil
	}
	return convertSelection(body, inherited{visibility: "visible"}), nil
}

type inherited struct {
	visibility string
	hidden     bool
}

func convertSelection(sel *goquery.Selection, parent inherited) *RawNode {
	name := goquery.NodeName(sel)
	switch name {
	case "#text":
		return &RawNode{Type: RawText, Text: sel.Text()}
	case "#comment", "#doctype", "#document":
		return nil
	}

	n := &RawNode{
		Type:       RawElement,
		Tag:        name,
		Attributes: map[string]string{},
		Visibility: parent.visibility,
		Display:    "block",
		Opacity:    "1",
		Width:      1,
		Height:     1,
	}
	for _, a := range sel.Get(0).Attr {
		n.Attributes[a.Key] = a.Val
	}
	_, n.HasClickHandler = n.Attributes["onclick"]

	applyInlineStyle(n, n.Attributes["style"])
	if _, ok := n.Attributes["hidden"]; ok {
		n.Display = "none"
	}
	if name == "input" && strings.EqualFold(n.Attributes["type"], "hidden") {
		n.Display = "none"
	}

	state := inherited{visibility: n.Visibility, hidden: parent.hidden || n.Display == "none"}
	if state.hidden {
		n.Width, n.Height = 0, 0
	}

	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if child := convertSelection(c, state); child != nil {
			n.Children = append(n.Children, child)
		}
	})
	return n
}

func applyInlineStyle(n *RawNode, style string) {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch prop {
		case "display":
			n.Display = val
		case "visibility":
			n.Visibility = val
		case "opacity":
			if f, err := strconv.ParseFloat(val, 64); err == nil && f == 0 {
				n.Opacity = "0"
			} else {
				n.Opacity = val
			}
		case "width":
			if isZeroLength(val) {
				n.Width = 0
			}
		case "height":
			if isZeroLength(val) {
				n.Height = 0
			}
		}
	}
}

func isZeroLength(v string) bool {
	v = strings.TrimRight(v, "pxremvhw%")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil && f == 0
}
