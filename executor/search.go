package executor

import (
	"context"
	"fmt"

	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// runSearch 搜索框协议,校验失败或元素隐藏时整轮重来一次。
// 重试时输入框若已可见则跳过标题点击(见 expandSearch),第二轮实际为 点击 → 子动作。
func (e *Executor) runSearch(ctx context.Context, action models.Action, target Target) error {
	attempt := 0
	return WithRetry(ctx, func() error {
		attempt++
		err := e.searchCycle(ctx, action, target)
		if err != nil && attempt < searchMaxAttempts && isSearchRetryable(err) {
			logger.Warn(ctx, "[Search] attempt %d failed (%v), re-expanding and retrying", attempt, err)
		}
		return err
	}, searchMaxAttempts, isSearchRetryable)
}

// searchCycle 展开 → 等待 → 等待输入框可见 → 点击聚焦 → 等待 → 子动作
func (e *Executor) searchCycle(ctx context.Context, action models.Action, target Target) error {
	inputs := e.searchInputs(target)

	if err := e.expandSearch(ctx, inputs); err != nil {
		return err
	}

	input, err := e.waitFirstVisible(ctx, inputs, e.timeouts.Visible)
	if err != nil {
		return fmt.Errorf("search input: %w", err)
	}
	if err := e.page.Click(ctx, input, ClickOptions{}); err != nil {
		return fmt.Errorf("focus search input: %w", err)
	}
	if err := sleep(ctx, e.timeouts.ClickSettle); err != nil {
		return err
	}

	switch action.Kind {
	case models.ActionFill:
		if err := e.page.Fill(ctx, input, action.Value); err != nil {
			return fmt.Errorf("fill search input: %w", err)
		}
		return sleep(ctx, e.timeouts.FillSettle)
	case models.ActionPress:
		key := action.Key
		if key == "" {
			key = "Enter"
		}
		if err := e.page.Press(ctx, input, key); err != nil {
			return fmt.Errorf("press %s in search input: %w", key, err)
		}
		if err := e.waitNetworkIdle(ctx); err != nil {
			return err
		}
		return e.verifySearch(ctx)
	}
	// click: 聚焦输入框即为动作本身
	return nil
}

// expandSearch 输入框已可见时不再点击标题,避免把已展开的区域收起
func (e *Executor) expandSearch(ctx context.Context, inputs []locator.Locator) error {
	for _, loc := range inputs {
		if ok, err := e.page.Visible(ctx, loc); err == nil && ok {
			return nil
		}
	}

	header, err := e.waitFirstVisible(ctx, []locator.Locator{e.search.Header}, e.timeouts.Visible)
	if err != nil {
		return fmt.Errorf("search header: %w", err)
	}
	if err := e.page.Click(ctx, header, ClickOptions{}); err != nil {
		return fmt.Errorf("expand search header: %w", err)
	}
	return sleep(ctx, e.timeouts.ClickSettle)
}

// verifySearch 结果出现或“无结果”提示出现都算搜索完成
func (e *Executor) verifySearch(ctx context.Context) error {
	winner, err := e.raceVisible(ctx, e.timeouts.Verify, e.search.Results, e.search.NoResults)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: neither results nor no-results appeared within %v", ErrVerificationFailed, e.timeouts.Verify)
	}
	logger.Info(ctx, "[Search] search completed, observed %s", winner.Expr)
	return nil
}

// searchInputs 配置的搜索输入框优先,其次是解析得到的候选
func (e *Executor) searchInputs(target Target) []locator.Locator {
	out := make([]locator.Locator, 0, len(target.Locators)+1)
	out = append(out, e.search.Input)
	for _, l := range target.Locators {
		if l.Kind == e.search.Input.Kind && l.Expr == e.search.Input.Expr {
			continue
		}
		out = append(out, l)
	}
	return out
}

// clickCheckbox 依次尝试解析得到的候选和固定的复选框模式,点击第一个存在的元素
func (e *Executor) clickCheckbox(ctx context.Context, target Target) error {
	candidates := append(append([]locator.Locator{}, target.Locators...), e.search.CheckboxPatterns...)
	for _, loc := range candidates {
		n, err := e.page.Count(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if n == 0 {
			continue
		}
		logger.Info(ctx, "[Checkbox] clicking %s", loc)
		if err := e.page.Click(ctx, loc, ClickOptions{Force: true}); err != nil {
			return fmt.Errorf("click checkbox %s: %w", loc, err)
		}
		return sleep(ctx, e.timeouts.ClickSettle)
	}
	return ErrNoMatchingCheckbox
}
