package snapshot

import (
	"strings"
	"sync/atomic"
)

// ReservedOverlayID 注入页面的状态浮层 id,构建快照时整棵子树被跳过
const ReservedOverlayID = "resquared-automation-status"

const DefaultMaxDepth = 20

var (
	excludedTags = map[string]bool{"script": true, "style": true, "noscript": true}

	interactiveTags = map[string]bool{
		"a": true, "button": true, "input": true, "select": true,
		"textarea": true, "details": true, "summary": true,
	}

	interactiveRoles = map[string]bool{"button": true, "link": true, "checkbox": true, "menuitem": true}
)

// Options 构建选项
type Options struct {
	// IncludeHighlighting 为 true 时 Capture 在页面上标记可交互元素,不影响快照数据
	IncludeHighlighting bool
	FocusHighlightIndex *uint
	MaxDepth            int
	CollectMetrics      bool
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Builder 把原始节点树转成 Snapshot。
// handle 计数器在多次构建间持续递增,旧快照的 handle 不会与新快照冲突。
type Builder struct {
	alloc      *HandleAllocator
	generation atomic.Uint64
}

// NewBuilder alloc 为 nil 时使用进程级计数器
func NewBuilder(alloc *HandleAllocator) *Builder {
	if alloc == nil {
		alloc = &processAllocator
	}
	return &Builder{alloc: alloc}
}

// buildContext 一次遍历的可变状态
type buildContext struct {
	snap          *Snapshot
	alloc         *HandleAllocator
	maxDepth      int
	nextHighlight uint
	metrics       *PerfMetrics
	rootFound     bool
}

// Build 从 body 开始深度优先遍历。body 为 nil(导航中)时返回退化快照。
func (b *Builder) Build(body *RawNode, opts Options) *Snapshot {
	snap := &Snapshot{
		Generation: b.generation.Add(1),
		Nodes:      make(map[Handle]NodeRecord),
		minSeq:     b.alloc.Mark(),
	}
	bc := &buildContext{
		snap:     snap,
		alloc:    b.alloc,
		maxDepth: opts.maxDepth(),
	}
	if opts.CollectMetrics {
		bc.metrics = &PerfMetrics{}
		snap.Metrics = bc.metrics
	}

	if body != nil {
		bc.visit(body, "", 0)
	}
	if !bc.rootFound {
		b.degenerate(snap)
	}
	return snap
}

func (b *Builder) degenerate(snap *Snapshot) {
	snap.Nodes = make(map[Handle]NodeRecord, 1)
	snap.highlights = nil
	h := b.alloc.Next(KindElement)
	snap.Nodes[h] = &ElementNode{
		Tag:        ErrorTag,
		Attributes: map[string]string{"reason": "document body unavailable"},
		Children:   []Handle{},
	}
	snap.RootHandle = h
}

func (bc *buildContext) skip() {
	if bc.metrics != nil {
		bc.metrics.Skipped++
	}
}

// visit 返回节点的 handle;节点被过滤时 ok 为 false
func (bc *buildContext) visit(n *RawNode, parentTag string, depth int) (Handle, bool) {
	if bc.metrics != nil {
		bc.metrics.Visited++
	}

	switch n.Type {
	case RawText:
		text := strings.TrimSpace(n.Text)
		if text == "" {
			bc.skip()
			return Handle{}, false
		}
		h := bc.alloc.Next(KindText)
		bc.snap.Nodes[h] = &TextNode{Text: text, ParentTag: parentTag}
		bc.processed()
		return h, true
	case RawElement:
	default:
		bc.skip()
		return Handle{}, false
	}

	tag := strings.ToLower(n.Tag)
	if n.Attributes["id"] == ReservedOverlayID || excludedTags[tag] {
		bc.skip()
		return Handle{}, false
	}

	el := &ElementNode{
		Tag:        tag,
		Attributes: copyAttributes(n.Attributes),
		Children:   []Handle{},
		IsVisible:  isVisible(n),
		Ref:        n.Ref,
	}

	// 先序: 高亮编号在处理子节点之前分配
	var pending *uint
	if el.IsVisible && isInteractive(tag, n) {
		el.IsInteractive = true
		idx := bc.nextHighlight
		bc.nextHighlight++
		el.HighlightIndex = &idx
		pending = &idx
	}

	if depth < bc.maxDepth {
		for _, c := range n.Children {
			if c == nil {
				continue
			}
			if ch, ok := bc.visit(c, tag, depth+1); ok {
				el.Children = append(el.Children, ch)
			}
		}
	} else if bc.metrics != nil {
		bc.metrics.Skipped += len(n.Children)
	}

	// 后序: 子节点全部处理完才分配 handle 并写入 map
	h := bc.alloc.Next(KindElement)
	bc.snap.Nodes[h] = el
	bc.processed()
	if pending != nil {
		bc.setHighlight(*pending, h)
	}
	if tag == "body" && !bc.rootFound {
		bc.snap.RootHandle = h
		bc.rootFound = true
	}
	return h, true
}

func (bc *buildContext) processed() {
	if bc.metrics != nil {
		bc.metrics.Processed++
	}
}

func (bc *buildContext) setHighlight(idx uint, h Handle) {
	hl := bc.snap.highlights
	for uint(len(hl)) <= idx {
		hl = append(hl, Handle{})
	}
	hl[idx] = h
	bc.snap.highlights = hl
}

func isVisible(n *RawNode) bool {
	return n.Width > 0 && n.Height > 0 &&
		strings.TrimSpace(n.Visibility) != "hidden" &&
		strings.TrimSpace(n.Display) != "none" &&
		strings.TrimSpace(n.Opacity) != "0"
}

func isInteractive(tag string, n *RawNode) bool {
	if interactiveTags[tag] {
		return true
	}
	if interactiveRoles[strings.ToLower(strings.TrimSpace(n.Attributes["role"]))] {
		return true
	}
	if n.HasClickHandler {
		return true
	}
	if ti, ok := n.Attributes["tabindex"]; ok && strings.TrimSpace(ti) != "-1" {
		return true
	}
	return false
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
