package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// rodPage 用 rod 实现执行器需要的页面能力
type rodPage struct {
	page *rod.Page
}

func newPage(page *rod.Page) *rodPage {
	return &rodPage{page: page}
}

func (p *rodPage) Evaluate(ctx context.Context, fn string, out any) error {
	res, err := p.page.Context(ctx).Eval(fn)
	if err != nil {
		return mapErr(ctx, err)
	}
	if out == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// elements 不等待,立即返回当前匹配的元素
func (p *rodPage) elements(ctx context.Context, loc locator.Locator) (rod.Elements, error) {
	pg := p.page.Context(ctx)
	if loc.Kind == locator.KindXPath {
		return pg.ElementsX(loc.Expr)
	}
	return pg.Elements(loc.Expr)
}

func (p *rodPage) first(ctx context.Context, loc locator.Locator) (*rod.Element, error) {
	els, err := p.elements(ctx, loc)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	if els.Empty() {
		return nil, fmt.Errorf("%w: %s", executor.ErrNoMatchingLocator, loc)
	}
	return els.First(), nil
}

func (p *rodPage) Count(ctx context.Context, loc locator.Locator) (int, error) {
	els, err := p.elements(ctx, loc)
	if err != nil {
		return 0, mapErr(ctx, err)
	}
	return len(els), nil
}

func (p *rodPage) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	els, err := p.elements(ctx, loc)
	if err != nil {
		return false, mapErr(ctx, err)
	}
	if els.Empty() {
		return false, nil
	}
	return els.First().Visible()
}

func (p *rodPage) WaitForSelector(ctx context.Context, loc locator.Locator, state executor.WaitState, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pg := p.page.Context(waitCtx)

	if state == executor.StateHidden {
		els, err := p.elements(waitCtx, loc)
		if err != nil {
			return mapErr(ctx, err)
		}
		if els.Empty() {
			return nil
		}
		return mapErr(ctx, els.First().WaitInvisible())
	}

	var el *rod.Element
	var err error
	if loc.Kind == locator.KindXPath {
		el, err = pg.ElementX(loc.Expr)
	} else {
		el, err = pg.Element(loc.Expr)
	}
	if err != nil {
		return mapErr(ctx, err)
	}
	if state == executor.StateAttached {
		return nil
	}
	return mapErr(ctx, el.WaitVisible())
}

func (p *rodPage) Click(ctx context.Context, loc locator.Locator, opts executor.ClickOptions) error {
	el, err := p.first(ctx, loc)
	if err != nil {
		return err
	}
	el = el.Context(ctx)

	if opts.Force {
		// 直接在元素上派发点击,不受遮挡和可见性影响
		if _, err := el.Eval(`() => this.click()`); err != nil {
			return fmt.Errorf("javaScript click failed: %w", mapErr(ctx, err))
		}
		return nil
	}

	if err := el.ScrollIntoView(); err != nil {
		logger.Warn(ctx, "Failed to scroll to element: %v", err)
	}
	err = el.Click(proto.InputMouseButtonLeft, 1)
	if err == nil {
		return nil
	}
	if isNotInteractable(err) {
		return fmt.Errorf("%w: %v", executor.ErrElementHidden, err)
	}
	if ctx.Err() != nil || executor.IsSessionError(err) {
		return mapErr(ctx, err)
	}

	logger.Warn(ctx, "Regular click failed, trying JavaScript click: %v", err)
	if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
		return fmt.Errorf("click failed: %w", mapErr(ctx, err))
	}
	return nil
}

func (p *rodPage) Fill(ctx context.Context, loc locator.Locator, value string) error {
	el, err := p.first(ctx, loc)
	if err != nil {
		return err
	}
	el = el.Context(ctx)

	if err := el.SelectAllText(); err != nil {
		logger.Warn(ctx, "SelectAllText failed: %v, clearing with JavaScript", err)
		if _, jsErr := el.Eval(`() => { this.value = ''; }`); jsErr != nil {
			logger.Warn(ctx, "Failed to clear input: %v", jsErr)
		}
	}
	if err := el.Input(value); err != nil {
		if isNotInteractable(err) {
			return fmt.Errorf("%w: %v", executor.ErrElementHidden, err)
		}
		return mapErr(ctx, err)
	}
	return nil
}

func (p *rodPage) Press(ctx context.Context, loc locator.Locator, key string) error {
	el, err := p.first(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Focus(); err != nil {
		logger.Warn(ctx, "Failed to focus element: %v", err)
	}
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return mapErr(ctx, p.page.Context(ctx).Keyboard.Type(k))
}

func (p *rodPage) WaitForLoadState(ctx context.Context, state executor.LoadState, timeout time.Duration) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	switch state {
	case executor.LoadNetworkIdle:
		return mapErr(ctx, pg.WaitIdle(timeout))
	default:
		return mapErr(ctx, pg.WaitLoad())
	}
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take viewport screenshot: %w", mapErr(ctx, err))
	}
	return data, nil
}

// keyFor 把按键名转换成 rod 的 input.Key
func keyFor(name string) (input.Key, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "enter", "return":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape", "esc":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "delete":
		return input.Delete, nil
	case "space", " ":
		return input.Space, nil
	case "arrowup", "up":
		return input.ArrowUp, nil
	case "arrowdown", "down":
		return input.ArrowDown, nil
	case "arrowleft", "left":
		return input.ArrowLeft, nil
	case "arrowright", "right":
		return input.ArrowRight, nil
	case "home":
		return input.Home, nil
	case "end":
		return input.End, nil
	case "pageup":
		return input.PageUp, nil
	case "pagedown":
		return input.PageDown, nil
	}
	if r := []rune(name); len(r) == 1 {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("unsupported key: %s", name)
}

func isNotInteractable(err error) bool {
	var invisible *rod.InvisibleShapeError
	var covered *rod.CoveredError
	var noPointer *rod.NoPointerEventsError
	return errors.As(err, &invisible) || errors.As(err, &covered) || errors.As(err, &noPointer)
}

// mapErr 把 rod 的错误转换成执行器的错误分类
func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", executor.ErrTimeout, err)
	}
	if executor.IsSessionError(err) {
		return fmt.Errorf("%w: %v", executor.ErrUpstreamUnavailable, err)
	}
	return err
}

var _ executor.Page = (*rodPage)(nil)
