package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NodeRecord 快照中的节点: *ElementNode 或 *TextNode
type NodeRecord interface {
	recordType() string
}

// ElementNode 元素节点
type ElementNode struct {
	Tag            string            `json:"tag"`
	Attributes     map[string]string `json:"attributes"`
	Children       []Handle          `json:"children"`
	IsVisible      bool              `json:"is_visible"`
	IsInteractive  bool              `json:"is_interactive"`
	HighlightIndex *uint             `json:"highlight_index,omitempty"`
	// Ref 页面内采集脚本写入 data-wing-ref 的编号,静态 HTML 来源为 0
	Ref int `json:"ref,omitempty"`
}

// TextNode 文本节点,内容已去除首尾空白且非空
type TextNode struct {
	Text      string `json:"text"`
	ParentTag string `json:"parent_tag,omitempty"`
}

func (*ElementNode) recordType() string { return "element" }
func (*TextNode) recordType() string    { return "text" }

// PerfMetrics 一次构建的遍历统计
type PerfMetrics struct {
	Visited   int `json:"visited"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// ErrorTag 合成错误节点的 tag,页面没有 body 时作为根
const ErrorTag = "#error"

// Snapshot 某一时刻页面的冻结视图
type Snapshot struct {
	Generation uint64
	RootHandle Handle
	Nodes      map[Handle]NodeRecord
	Metrics    *PerfMetrics

	// minSeq 本快照签发的第一个序号,更小的 handle 属于更早的快照
	minSeq     uint64
	highlights []Handle
}

// Degenerate 页面没有 body 时返回 true,调用方应稍后重试
func (s *Snapshot) Degenerate() bool {
	root, ok := s.Nodes[s.RootHandle].(*ElementNode)
	return !ok || root.Tag == ErrorTag
}

// Lookup 按 handle 取节点,过期或未知的 handle 显式失败
func (s *Snapshot) Lookup(h Handle) (NodeRecord, error) {
	if rec, ok := s.Nodes[h]; ok {
		return rec, nil
	}
	if h.Seq != 0 && h.Seq < s.minSeq {
		return nil, fmt.Errorf("%w: %s (snapshot generation %d)", ErrStaleHandle, h, s.Generation)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
}

// Element 按 handle 取元素节点
func (s *Snapshot) Element(h Handle) (*ElementNode, error) {
	rec, err := s.Lookup(h)
	if err != nil {
		return nil, err
	}
	el, ok := rec.(*ElementNode)
	if !ok {
		return nil, fmt.Errorf("handle %s is not an element", h)
	}
	return el, nil
}

// ByHighlight 按高亮编号取元素
func (s *Snapshot) ByHighlight(index uint) (Handle, *ElementNode, bool) {
	if int(index) >= len(s.highlights) {
		return Handle{}, nil, false
	}
	h := s.highlights[index]
	el, _ := s.Nodes[h].(*ElementNode)
	return h, el, el != nil
}

// HighlightCount 可交互且可见的元素数量
func (s *Snapshot) HighlightCount() int {
	return len(s.highlights)
}

// Walk 从根开始按文档顺序(先序)访问节点,fn 返回 false 时不再进入子节点
func (s *Snapshot) Walk(fn func(h Handle, rec NodeRecord, depth int) bool) {
	var visit func(h Handle, depth int)
	visit = func(h Handle, depth int) {
		rec, ok := s.Nodes[h]
		if !ok {
			return
		}
		if !fn(h, rec, depth) {
			return
		}
		if el, ok := rec.(*ElementNode); ok {
			for _, c := range el.Children {
				visit(c, depth+1)
			}
		}
	}
	visit(s.RootHandle, 0)
}

type elementJSON struct {
	Type string `json:"type"`
	*ElementNode
}

type textJSON struct {
	Type string `json:"type"`
	*TextNode
}

type snapshotJSON struct {
	Generation uint64         `json:"generation"`
	RootHandle Handle         `json:"root_handle"`
	Nodes      map[Handle]any `json:"nodes"`
	Metrics    *PerfMetrics   `json:"metrics,omitempty"`
}

// MarshalJSON 节点带上 type 标签,handle 作为 map key
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Generation: s.Generation,
		RootHandle: s.RootHandle,
		Nodes:      make(map[Handle]any, len(s.Nodes)),
		Metrics:    s.Metrics,
	}
	for h, rec := range s.Nodes {
		switch r := rec.(type) {
		case *ElementNode:
			out.Nodes[h] = elementJSON{Type: r.recordType(), ElementNode: r}
		case *TextNode:
			out.Nodes[h] = textJSON{Type: r.recordType(), TextNode: r}
		}
	}
	return json.Marshal(out)
}

// Handles 返回按签发顺序排列的所有 handle
func (s *Snapshot) Handles() []Handle {
	hs := make([]Handle, 0, len(s.Nodes))
	for h := range s.Nodes {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Seq < hs[j].Seq })
	return hs
}
