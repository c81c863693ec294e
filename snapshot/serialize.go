package snapshot

import (
	"fmt"
	"strings"
)

const maxLabelLen = 80

// describedAttributes 写进文本描述的属性,按顺序输出
var describedAttributes = []string{"type", "name", "placeholder", "aria-label", "role", "title", "value", "href"}

// SerializeToSimpleText 把快照中可交互的元素序列化成给决策函数看的文本
func SerializeToSimpleText(s *Snapshot) string {
	var b strings.Builder
	if s == nil || s.Degenerate() {
		b.WriteString("Page is not ready (document body unavailable).\n")
		return b.String()
	}

	b.WriteString("Page Interactive Elements:\n")
	b.WriteString("(Refer to an element by its index, e.g. '#3')\n\n")

	if s.HighlightCount() == 0 {
		b.WriteString("  (none)\n")
	}
	for i := 0; i < s.HighlightCount(); i++ {
		_, el, ok := s.ByHighlight(uint(i))
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("  [%d] <%s>", i, el.Tag))
		if label := s.TextOf(el); label != "" {
			b.WriteString(" " + truncate(label, maxLabelLen))
		}
		var attrs []string
		for _, name := range describedAttributes {
			if v := strings.TrimSpace(el.Attributes[name]); v != "" {
				attrs = append(attrs, fmt.Sprintf("%s=%q", name, truncate(v, 40)))
			}
		}
		if len(attrs) > 0 {
			b.WriteString(" (" + strings.Join(attrs, ", ") + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// TextOf 元素子树中所有文本节点按文档顺序拼接
func (s *Snapshot) TextOf(el *ElementNode) string {
	var parts []string
	var collect func(e *ElementNode)
	collect = func(e *ElementNode) {
		for _, h := range e.Children {
			switch rec := s.Nodes[h].(type) {
			case *TextNode:
				parts = append(parts, rec.Text)
			case *ElementNode:
				collect(rec)
			}
		}
	}
	collect(el)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
