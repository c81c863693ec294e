package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/pkg/metrics"
)

const (
	pollInterval      = 200 * time.Millisecond
	searchMaxAttempts = 2
)

// Executor 在一个页面上串行执行动作
type Executor struct {
	page          Page
	timeouts      Timeouts
	search        SearchProfile
	metrics       *metrics.Metrics
	screenshotDir string
	diagnostics   bool
}

type Option func(*Executor)

func WithTimeouts(t Timeouts) Option {
	return func(e *Executor) { e.timeouts = t }
}

func WithSearchProfile(p SearchProfile) Option {
	return func(e *Executor) { e.search = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithScreenshotDir 失败时把诊断截图写到 dir;dir 为空时关闭截图
func WithScreenshotDir(dir string) Option {
	return func(e *Executor) {
		e.screenshotDir = dir
		e.diagnostics = dir != ""
	}
}

// NewExecutor 创建 Executor 实例
func NewExecutor(page Page, opts ...Option) *Executor {
	e := &Executor{
		page:     page,
		timeouts: DefaultTimeouts(),
		search:   DefaultSearchProfile(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page 返回执行器操作的页面
func (e *Executor) Page() Page {
	return e.page
}

// SearchProfile 返回当前使用的搜索区域配置
func (e *Executor) SearchProfile() SearchProfile {
	return e.search
}

// Execute 执行一个动作。所有底层错误和 panic 都转换成 Outcome,不会越过这个边界。
func (e *Executor) Execute(ctx context.Context, action models.Action, target Target) (out models.Outcome) {
	start := time.Now()
	action, target = e.normalize(ctx, action, target)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "[Execute] panic while executing %s: %v", action.Kind, r)
			out = models.Failure(models.FailureExecution, fmt.Sprintf("panic: %v", r))
		}
		e.metrics.ObserveAction(string(action.Kind), string(out.Status), string(out.Kind), time.Since(start))
	}()

	logger.Info(ctx, "[Execute] %s on %q (%s, %d candidates)", action.Kind, action.Locator, target.Class, len(target.Locators))
	err := e.dispatch(ctx, action, target)
	if err != nil {
		out = ToOutcome(err)
		logger.Warn(ctx, "[Execute] %s on %q failed: %s", action.Kind, action.Locator, out)
		if out.Kind != models.FailureCancelled {
			e.captureDiagnostics(ctx, string(action.Kind)+"_"+string(out.Kind))
		}
		return out
	}
	logger.Info(ctx, "[Execute] ✓ %s on %q succeeded", action.Kind, action.Locator)
	return models.Success()
}

// normalize 无法识别的动作或空定位器替换为展开主折叠区域
func (e *Executor) normalize(ctx context.Context, action models.Action, target Target) (models.Action, Target) {
	if action.Kind == models.ActionWait {
		return action, target
	}
	if action.Kind.Valid() && (strings.TrimSpace(action.Locator) != "" || len(target.Locators) > 0) {
		return action, target
	}
	logger.Warn(ctx, "[Execute] Malformed action (kind=%q locator=%q), expanding primary section instead", action.Kind, action.Locator)
	return e.DefaultAction(), Target{Class: locator.ClassGeneral, Locators: []locator.Locator{e.search.Header}}
}

// DefaultAction 上游给出无效动作时的安全替代: 点击主折叠区域的标题
func (e *Executor) DefaultAction() models.Action {
	return models.Action{Kind: models.ActionClick, Locator: e.search.Header.Expr}
}

func (e *Executor) dispatch(ctx context.Context, action models.Action, target Target) error {
	if action.Kind == models.ActionWait {
		d := time.Duration(action.DurationMs) * time.Millisecond
		if d <= 0 {
			d = e.timeouts.DefaultWait
		}
		return sleep(ctx, d)
	}

	switch target.Class {
	case locator.ClassSearchBox:
		return e.runSearch(ctx, action, target)
	case locator.ClassCheckbox:
		if action.Kind == models.ActionClick {
			return WithRetry(ctx, func() error { return e.clickCheckbox(ctx, target) }, 2, isHidden)
		}
	}

	switch action.Kind {
	case models.ActionClick:
		return e.click(ctx, target.Locators)
	case models.ActionFill:
		return e.fill(ctx, target.Locators, action.Value)
	case models.ActionPress:
		return e.press(ctx, target.Locators, action.Key)
	}
	return fmt.Errorf("%w: kind %q", models.ErrMalformedAction, action.Kind)
}

func (e *Executor) click(ctx context.Context, locs []locator.Locator) error {
	loc, err := e.waitFirstVisible(ctx, locs, e.timeouts.Visible)
	if err != nil {
		return err
	}
	if err := e.page.Click(ctx, loc, ClickOptions{}); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return sleep(ctx, e.timeouts.ClickSettle)
}

func (e *Executor) fill(ctx context.Context, locs []locator.Locator, value string) error {
	loc, err := e.waitFirstVisible(ctx, locs, e.timeouts.Visible)
	if err != nil {
		return err
	}
	if err := e.page.Fill(ctx, loc, value); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return sleep(ctx, e.timeouts.FillSettle)
}

func (e *Executor) press(ctx context.Context, locs []locator.Locator, key string) error {
	loc, err := e.waitFirstVisible(ctx, locs, e.timeouts.Visible)
	if err != nil {
		return err
	}
	if err := e.page.Press(ctx, loc, key); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, loc, err)
	}
	return e.waitNetworkIdle(ctx)
}

// waitNetworkIdle 按键可能触发导航或异步加载;超时只记日志
func (e *Executor) waitNetworkIdle(ctx context.Context) error {
	if err := e.page.WaitForLoadState(ctx, LoadNetworkIdle, e.timeouts.NetworkIdle); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn(ctx, "Network did not become idle within %v: %v", e.timeouts.NetworkIdle, err)
	}
	return nil
}

// waitFirstVisible 每轮按顺序检查所有候选,返回第一个可见的定位器。
// 截止时仍没有可见的候选时,对第一个已挂载的候选做一次短暂的 WaitForSelector。
// 超时返回 ErrTimeout;若期间没有任何定位器匹配到元素,错误同时包装 ErrNoMatchingLocator。
func (e *Executor) waitFirstVisible(ctx context.Context, locs []locator.Locator, timeout time.Duration) (locator.Locator, error) {
	if len(locs) == 0 {
		return locator.Locator{}, fmt.Errorf("%w: no candidates", ErrNoMatchingLocator)
	}
	deadline := time.Now().Add(timeout)

	var attached *locator.Locator
	for {
		for i, loc := range locs {
			n, err := e.page.Count(ctx, loc)
			if err == nil && n > 0 {
				if attached == nil {
					attached = &locs[i]
				}
				var visible bool
				visible, err = e.page.Visible(ctx, loc)
				if err == nil && visible {
					return loc, nil
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return locator.Locator{}, ctx.Err()
				}
				if IsSessionError(err) {
					return locator.Locator{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
				}
				logger.Debug(ctx, "Locator %s failed to evaluate: %v", loc, err)
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(pollInterval, remaining)); err != nil {
			return locator.Locator{}, err
		}
	}

	if attached == nil {
		return locator.Locator{}, fmt.Errorf("%w: %w: none of %d candidates matched within %v", ErrTimeout, ErrNoMatchingLocator, len(locs), timeout)
	}
	if err := e.page.WaitForSelector(ctx, *attached, StateVisible, min(pollInterval, timeout)); err == nil {
		return *attached, nil
	}
	if ctx.Err() != nil {
		return locator.Locator{}, ctx.Err()
	}
	return locator.Locator{}, fmt.Errorf("%w: %w: %s not visible within %v", ErrTimeout, ErrElementHidden, *attached, timeout)
}

// raceVisible 同时等待多个定位器,第一个可见的胜出
func (e *Executor) raceVisible(ctx context.Context, timeout time.Duration, locs ...locator.Locator) (locator.Locator, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		loc locator.Locator
		err error
	}
	results := make(chan result, len(locs))
	for _, loc := range locs {
		go func(loc locator.Locator) {
			results <- result{loc: loc, err: e.page.WaitForSelector(ctx, loc, StateVisible, timeout)}
		}(loc)
	}

	var errs []error
	for range locs {
		r := <-results
		if r.err == nil {
			return r.loc, nil
		}
		errs = append(errs, r.err)
	}
	return locator.Locator{}, errors.Join(errs...)
}

// sleep 可取消的等待
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var placeholderAttr = regexp.MustCompile(`placeholder\*?=["']?([^"'\]]+)`)

func placeholderOf(css string) string {
	if m := placeholderAttr.FindStringSubmatch(css); m != nil {
		return m[1]
	}
	return "Search"
}
