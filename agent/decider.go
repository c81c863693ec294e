// Package agent 决策函数边界: 根据页面快照和目标给出下一步动作
package agent

import (
	"context"
	"errors"

	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

// ErrUnparseableDecision 决策输出里既没有动作也没有完成标记
var ErrUnparseableDecision = errors.New("unparseable decision")

// DecisionInput 一次决策的输入
type DecisionInput struct {
	Snapshot *snapshot.Snapshot
	Prompt   string
	Steps    []models.AutomationStep
	PageURL  string
	// PageHTML 页面正文 HTML,转换为 Markdown 后截断放入提示词
	PageHTML string
}

// Decision 决策结果。Done 为 true 时 Action 被忽略。
type Decision struct {
	Done    bool             `json:"done"`
	Summary string           `json:"summary,omitempty"`
	Action  models.RawAction `json:"action"`
}

// Decider 决策函数。返回的错误视为上游不可用。
type Decider interface {
	Decide(ctx context.Context, in DecisionInput) (Decision, error)
}

// DeciderFunc 让普通函数满足 Decider
type DeciderFunc func(ctx context.Context, in DecisionInput) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	return f(ctx, in)
}

// PageHTMLScript 读取页面正文 HTML,供提示词使用
const PageHTMLScript = `() => document.body ? document.body.innerHTML : ''`
