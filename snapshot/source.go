package snapshot

// RawNode 快照来源(页面内采集脚本或静态 HTML)产出的原始节点
type RawNode struct {
	// Type "element" 或 "text"
	Type       string            `json:"type"`
	Tag        string            `json:"tag,omitempty"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attrs,omitempty"`
	Ref        int               `json:"ref,omitempty"`

	Width      float64 `json:"w,omitempty"`
	Height     float64 `json:"h,omitempty"`
	Visibility string  `json:"visibility,omitempty"`
	Display    string  `json:"display,omitempty"`
	Opacity    string  `json:"opacity,omitempty"`
	// HasClickHandler 只能检测到 onclick 属性或 el.onclick,addEventListener 注册的监听器检测不到
	HasClickHandler bool `json:"click,omitempty"`

	Children []*RawNode `json:"children,omitempty"`
}

const (
	RawElement = "element"
	RawText    = "text"
)
