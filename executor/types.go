package executor

import (
	"context"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/locator"
)

// WaitState WaitForSelector 等待的元素状态
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateAttached WaitState = "attached"
	StateHidden   WaitState = "hidden"
)

// LoadState 页面加载状态
type LoadState string

const (
	LoadNetworkIdle      LoadState = "networkidle"
	LoadLoad             LoadState = "load"
	LoadDOMContentLoaded LoadState = "domcontentloaded"
)

// ClickOptions 点击选项
type ClickOptions struct {
	// Force 忽略遮挡,直接在元素上派发点击
	Force bool
}

// Page 执行器依赖的页面能力,任何满足它的自动化后端都可以替换。
// 等待超时返回包装了 ErrTimeout 的错误,元素不可见或不可交互返回包装了 ErrElementHidden 的错误。
type Page interface {
	Evaluate(ctx context.Context, fn string, out any) error
	Count(ctx context.Context, loc locator.Locator) (int, error)
	Visible(ctx context.Context, loc locator.Locator) (bool, error)
	WaitForSelector(ctx context.Context, loc locator.Locator, state WaitState, timeout time.Duration) error
	Click(ctx context.Context, loc locator.Locator, opts ClickOptions) error
	// Fill 设置输入框的值并派发 input/change 事件
	Fill(ctx context.Context, loc locator.Locator, value string) error
	Press(ctx context.Context, loc locator.Locator, key string) error
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session 一次运行独占的浏览器上下文,关闭后页面不可再用
type Session interface {
	Page() Page
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) string
	// ShowStatus 在页面上显示运行状态浮层,失败只记日志
	ShowStatus(ctx context.Context, text string)
	Close(ctx context.Context) error
}

// Target 解析后的动作目标
type Target struct {
	Class    locator.Class
	Locators []locator.Locator
}

// Timeouts 执行器的等待与稳定延迟
type Timeouts struct {
	Visible     time.Duration
	ClickSettle time.Duration
	FillSettle  time.Duration
	NetworkIdle time.Duration
	DefaultWait time.Duration
	Verify      time.Duration
}

func DefaultTimeouts() Timeouts {
	return TimeoutsFromConfig(config.DefaultExecutor())
}

func TimeoutsFromConfig(cfg *config.ExecutorConfig) Timeouts {
	if cfg == nil {
		cfg = config.DefaultExecutor()
	}
	return Timeouts{
		Visible:     config.Ms(cfg.VisibleTimeoutMs),
		ClickSettle: config.Ms(cfg.ClickSettleMs),
		FillSettle:  config.Ms(cfg.FillSettleMs),
		NetworkIdle: config.Ms(cfg.NetworkIdleTimeoutMs),
		DefaultWait: config.Ms(cfg.DefaultWaitMs),
		Verify:      config.Ms(cfg.VerifyTimeoutMs),
	}
}

// SearchProfile 目标应用的搜索区域
type SearchProfile struct {
	Header            locator.Locator
	Input             locator.Locator
	Results           locator.Locator
	NoResults         locator.Locator
	SaveButtonText    string
	CheckboxPatterns  []locator.Locator
	SearchPlaceholder string
}

func DefaultSearchProfile() SearchProfile {
	return SearchProfileFromConfig(config.DefaultSearch())
}

func SearchProfileFromConfig(cfg *config.SearchConfig) SearchProfile {
	if cfg == nil {
		cfg = config.DefaultSearch()
	}
	p := SearchProfile{
		Header:            locator.CSS(cfg.HeaderSelector),
		Input:             locator.CSS(cfg.InputSelector),
		Results:           locator.CSS(cfg.ResultsSelector),
		NoResults:         locator.CSS(cfg.NoResultsSelector),
		SaveButtonText:    cfg.SaveButtonText,
		SearchPlaceholder: placeholderOf(cfg.InputSelector),
	}
	for _, sel := range cfg.CheckboxSelectors {
		p.CheckboxPatterns = append(p.CheckboxPatterns, locator.CSS(sel))
	}
	return p
}
