package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// FallbackNote 脚本化兜底流程产生的步骤备注
const FallbackNote = "scripted fallback"

// RunFallback 连续失败后的兜底流程: 展开搜索 → 填写 → 提交 → 保存到列表。
// 返回已执行的步骤(Sequence 由调用方编号),遇到第一个失败即停止。
func (e *Executor) RunFallback(ctx context.Context, query string) ([]models.AutomationStep, error) {
	logger.Info(ctx, "[Fallback] running scripted search for %q", query)

	searchTarget := Target{Class: locator.ClassSearchBox, Locators: []locator.Locator{e.search.Input}}
	save := e.search.SaveButtonText
	saveTarget := Target{
		Class: locator.ClassGeneral,
		Locators: []locator.Locator{
			locator.TagText("button", save),
			locator.AttributeExact("", "aria-label", save),
			locator.TextScan(save),
		},
	}

	plan := []struct {
		action models.Action
		target Target
	}{
		{models.Action{Kind: models.ActionFill, Locator: e.search.Input.Expr, Value: query}, searchTarget},
		{models.Action{Kind: models.ActionPress, Locator: e.search.Input.Expr, Key: "Enter"}, searchTarget},
		{models.Action{Kind: models.ActionClick, Locator: save}, saveTarget},
	}

	steps := make([]models.AutomationStep, 0, len(plan))
	for _, p := range plan {
		start := time.Now()
		outcome := e.Execute(ctx, p.action, p.target)
		steps = append(steps, models.AutomationStep{
			Action:    p.action,
			Outcome:   outcome,
			Note:      FallbackNote,
			StartedAt: start,
			Duration:  time.Since(start),
		})
		if !outcome.OK() {
			return steps, fmt.Errorf("fallback %s on %q: %s", p.action.Kind, p.action.Locator, outcome)
		}
	}
	logger.Info(ctx, "[Fallback] ✓ scripted search completed")
	return steps, nil
}
