package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/tidwall/gjson"
)

// fencedJSON 提取 markdown 代码块中的 JSON
var fencedJSON = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(.*?)\\s*\x60\x60\x60")

// 上游输出的字段名不稳定,按顺序取第一个存在的别名
var (
	doneKeys     = []string{"done", "complete", "completed", "finished"}
	summaryKeys  = []string{"summary", "reason", "message"}
	kindKeys     = []string{"kind", "type", "action_type", "name"}
	locatorKeys  = []string{"locator", "selector", "target", "element", "element_index"}
	valueKeys    = []string{"value", "text", "input"}
	keyKeys      = []string{"key", "keys"}
	durationKeys = []string{"duration", "duration_ms", "ms", "milliseconds"}
)

// ParseDecision 从模型输出中解析决策。输出可以带代码块或前后闲聊,
// JSON 不完整时先修复。动作字段原样保留,规整交给 models.NormalizeAction。
func ParseDecision(text string) (Decision, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Decision{}, fmt.Errorf("%w: no JSON object in %q", ErrUnparseableDecision, truncate(text, 200))
	}
	if !gjson.Valid(raw) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnparseableDecision, err)
		}
		raw = repaired
	}

	root := gjson.Parse(raw)
	if root.IsArray() {
		root = root.Get("0")
	}

	d := Decision{
		Done:    first(root, doneKeys).Bool(),
		Summary: first(root, summaryKeys).String(),
	}

	// 动作可能嵌在 action 对象里,也可能平铺在顶层;action 也可能只是类型字符串
	act := root
	if a := root.Get("action"); a.Exists() {
		if a.IsObject() {
			act = a
		} else {
			d.Action.Kind = a.String()
		}
	}
	if d.Action.Kind == "" {
		d.Action.Kind = first(act, kindKeys).String()
	}
	d.Action.Locator = first(act, locatorKeys).String()
	d.Action.Value = first(act, valueKeys).String()
	d.Action.Key = first(act, keyKeys).String()
	d.Action.Duration = first(act, durationKeys).String()

	if !d.Done && d.Action.Kind == "" {
		return d, fmt.Errorf("%w: neither action nor done in %s", ErrUnparseableDecision, truncate(raw, 200))
	}
	return d, nil
}

func first(r gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	text = text[start:]
	if end := strings.LastIndexAny(text, "}]"); end >= 0 && gjson.Valid(text[:end+1]) {
		return text[:end+1]
	}
	return text
}

func actionFields(a models.RawAction) string {
	return fmt.Sprintf("kind=%q locator=%q value=%q key=%q duration=%q", a.Kind, a.Locator, a.Value, a.Key, a.Duration)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
