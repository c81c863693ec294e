package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// RefAttribute 采集脚本写到元素上的编号属性,执行器据此定位元素
const RefAttribute = "data-wing-ref"

// Evaluator 在页面中执行无参 JS 函数并把返回值解码到 out
type Evaluator interface {
	Evaluate(ctx context.Context, fn string, out any) error
}

// PageState 采集脚本的返回值
type PageState struct {
	Ready bool     `json:"ready"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Body  *RawNode `json:"body"`
}

const collectorScript = `() => {
	const MAX_DEPTH = %d;
	const OVERLAY_ID = %s;
	const REF = %s;
	if (!document.body) return { ready: false, url: location.href, title: document.title };

	document.querySelectorAll('[' + REF + ']').forEach(el => el.removeAttribute(REF));
	let ref = 0;

	function walk(node, depth) {
		if (node.nodeType === Node.TEXT_NODE) {
			return { type: 'text', text: node.textContent || '' };
		}
		if (node.nodeType !== Node.ELEMENT_NODE) return null;

		const el = node;
		const tag = el.tagName.toLowerCase();
		const out = { type: 'element', tag: tag, attrs: {} };
		for (const a of el.attributes) out.attrs[a.name] = a.value;
		if (el.id === OVERLAY_ID || tag === 'script' || tag === 'style' || tag === 'noscript') {
			return out;
		}

		ref++;
		el.setAttribute(REF, String(ref));
		out.ref = ref;

		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		out.w = rect.width;
		out.h = rect.height;
		out.visibility = style.visibility;
		out.display = style.display;
		out.opacity = style.opacity;
		out.click = el.hasAttribute('onclick') || typeof el.onclick === 'function';

		if (depth <= MAX_DEPTH) {
			out.children = [];
			for (const c of el.childNodes) {
				const r = walk(c, depth + 1);
				if (r) out.children.push(r);
			}
		}
		return out;
	}

	return { ready: true, url: location.href, title: document.title, body: walk(document.body, 0) };
}`

// CollectorScript 页面内采集脚本。多采一层,构建时被深度截断的子节点计入 skipped。
func CollectorScript(maxDepth int) string {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return fmt.Sprintf(collectorScript, maxDepth, jsString(ReservedOverlayID), jsString(RefAttribute))
}

const highlightScript = `() => {
	const OVERLAY_ID = %s;
	const REF = %s;
	const refs = %s;
	let root = document.getElementById(OVERLAY_ID);
	if (!root) {
		root = document.createElement('div');
		root.id = OVERLAY_ID;
		root.style.cssText = 'position:fixed;top:0;left:0;width:0;height:0;z-index:2147483647;pointer-events:none;';
		document.documentElement.appendChild(root);
	}
	let marks = root.querySelector('[data-wing-marks]');
	if (marks) marks.remove();
	marks = document.createElement('div');
	marks.setAttribute('data-wing-marks', '');
	root.appendChild(marks);

	let count = 0;
	refs.forEach((ref, i) => {
		const el = document.querySelector('[' + REF + '="' + ref + '"]');
		if (!el) return;
		const rect = el.getBoundingClientRect();
		const box = document.createElement('div');
		box.style.cssText = 'position:fixed;border:2px solid #3b82f6;box-shadow:0 0 0 3px rgba(59,130,246,0.3);pointer-events:none;';
		box.style.left = rect.left + 'px';
		box.style.top = rect.top + 'px';
		box.style.width = rect.width + 'px';
		box.style.height = rect.height + 'px';
		const label = document.createElement('span');
		label.textContent = String(%s[i]);
		label.style.cssText = 'position:absolute;top:-16px;left:0;background:#3b82f6;color:#fff;font:11px/14px monospace;padding:0 3px;border-radius:2px;';
		box.appendChild(label);
		marks.appendChild(box);
		count++;
	});
	return count;
}`

// HighlightScript 在 ref 对应元素上画标记框并标注高亮编号。
// 标记放在保留 id 的浮层里,下一次采集不会把它们当成页面内容。
func HighlightScript(refs []int, labels []uint) string {
	r, _ := json.Marshal(refs)
	l, _ := json.Marshal(labels)
	return fmt.Sprintf(highlightScript, jsString(ReservedOverlayID), jsString(RefAttribute), r, l)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Capture 在页面上运行采集脚本并构建快照
func Capture(ctx context.Context, ev Evaluator, b *Builder, opts Options) (*Snapshot, *PageState, error) {
	var state PageState
	if err := ev.Evaluate(ctx, CollectorScript(opts.maxDepth()), &state); err != nil {
		return nil, nil, fmt.Errorf("collect dom: %w", err)
	}

	var body *RawNode
	if state.Ready {
		body = state.Body
	}
	snap := b.Build(body, opts)
	if snap.Degenerate() {
		logger.Warn(ctx, "Document body unavailable at %s, returning degenerate snapshot", state.URL)
		return snap, &state, nil
	}

	if opts.IncludeHighlighting {
		refs, labels := highlightTargets(snap, opts.FocusHighlightIndex)
		var marked int
		if err := ev.Evaluate(ctx, HighlightScript(refs, labels), &marked); err != nil {
			logger.Warn(ctx, "Failed to highlight interactive elements: %v", err)
		}
	}
	return snap, &state, nil
}

func highlightTargets(s *Snapshot, focus *uint) ([]int, []uint) {
	refs := make([]int, 0, len(s.highlights))
	labels := make([]uint, 0, len(s.highlights))
	for i := range s.highlights {
		idx := uint(i)
		if focus != nil && idx != *focus {
			continue
		}
		_, el, ok := s.ByHighlight(idx)
		if !ok || el.Ref <= 0 {
			continue
		}
		refs = append(refs, el.Ref)
		labels = append(labels, idx)
	}
	return refs, labels
}

// Tracker 持有一个会话的当前快照,旧快照的 handle 在新快照上显式失败
type Tracker struct {
	mu      sync.Mutex
	ev      Evaluator
	builder *Builder
	opts    Options
	current *Snapshot
	page    *PageState
}

func NewTracker(ev Evaluator, opts Options) *Tracker {
	return &Tracker{ev: ev, builder: NewBuilder(nil), opts: opts}
}

// Capture 重新采集并替换当前快照
func (t *Tracker) Capture(ctx context.Context) (*Snapshot, error) {
	snap, state, err := Capture(ctx, t.ev, t.builder, t.opts)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.current = snap
	t.page = state
	t.mu.Unlock()
	return snap, nil
}

// Current 当前快照,未采集过时为 nil
func (t *Tracker) Current() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Page 最近一次采集时的页面地址和标题
func (t *Tracker) Page() *PageState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

// Invalidate 页面发生变更(动作、导航)后丢弃当前快照
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}

// Resolve 在当前快照中查找 handle
func (t *Tracker) Resolve(h Handle) (*ElementNode, error) {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()
	if cur == nil {
		if h.Seq != 0 && h.Seq < t.builder.alloc.Mark() {
			return nil, fmt.Errorf("%w: %s (no current snapshot)", ErrStaleHandle, h)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return cur.Element(h)
}
