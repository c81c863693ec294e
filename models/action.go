package models

import (
	"errors"
	"strconv"
	"strings"
)

// ActionKind 动作类型
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionFill  ActionKind = "fill"
	ActionPress ActionKind = "press"
	ActionWait  ActionKind = "wait"
)

// Valid 是否为可识别的动作类型
func (k ActionKind) Valid() bool {
	switch k {
	case ActionClick, ActionFill, ActionPress, ActionWait:
		return true
	}
	return false
}

// ErrMalformedAction 决策函数返回了无法识别的动作
var ErrMalformedAction = errors.New("malformed action")

// Action 一次待执行的浏览器动作
type Action struct {
	Kind       ActionKind `json:"kind"`
	Locator    string     `json:"locator"`
	Value      string     `json:"value,omitempty"`
	Key        string     `json:"key,omitempty"`
	DurationMs int        `json:"duration_ms,omitempty"`
}

// RawAction 决策函数输出的原始动作,字段都不可信
type RawAction struct {
	Kind     string `json:"kind"`
	Locator  string `json:"locator"`
	Value    string `json:"value,omitempty"`
	Key      string `json:"key,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// NormalizeAction 把原始动作规整为 Action。
// 返回的 error 为 ErrMalformedAction 时 Action 仍带着能解析出的字段,
// 调用方可据此替换为安全的默认动作。
func NormalizeAction(raw RawAction) (Action, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
	switch kind {
	case "type", "input":
		kind = ActionFill
	case "keypress", "key":
		kind = ActionPress
	case "sleep", "delay":
		kind = ActionWait
	}

	a := Action{
		Kind:    kind,
		Locator: strings.TrimSpace(raw.Locator),
		Value:   raw.Value,
		Key:     strings.TrimSpace(raw.Key),
	}
	if d, err := strconv.Atoi(strings.TrimSpace(raw.Duration)); err == nil && d > 0 {
		a.DurationMs = d
	}
	if a.Kind == ActionPress && a.Key == "" {
		a.Key = strings.TrimSpace(raw.Value)
	}

	if !a.Kind.Valid() {
		return a, ErrMalformedAction
	}
	if a.Kind != ActionWait && a.Locator == "" {
		return a, ErrMalformedAction
	}
	if a.Kind == ActionPress && a.Key == "" {
		a.Key = "Enter"
	}
	return a, nil
}

// Masked 返回用于日志和持久化的副本,secret 出现在 Value 中时被替换
func (a Action) Masked(secrets ...string) Action {
	for _, s := range secrets {
		if s != "" && strings.Contains(a.Value, s) {
			a.Value = strings.ReplaceAll(a.Value, s, "******")
		}
	}
	return a
}
