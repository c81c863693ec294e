package cdpbrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/locator"
)

const (
	defaultRunTimeout = 30 * time.Second
	clickTimeout      = 5 * time.Second
	pollEvery         = 100 * time.Millisecond
)

// cdpPage 用 chromedp 实现执行器需要的页面能力
type cdpPage struct {
	tab context.Context
}

// run 在标签页上下文里执行动作,同时响应调用方 ctx 的取消
func (p *cdpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return mapErr(ctx, chromedp.Run(runCtx, actions...))
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (p *cdpPage) Evaluate(ctx context.Context, fn string, out any) error {
	if out == nil {
		var discard json.RawMessage
		out = &discard
	}
	return p.run(ctx, 0, chromedp.Evaluate("("+fn+")()", out, awaitPromise))
}

// findJS 返回第一个匹配元素的表达式
func findJS(loc locator.Locator) string {
	q, _ := json.Marshal(loc.Expr)
	if loc.Kind == locator.KindXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", q)
	}
	return fmt.Sprintf("document.querySelector(%s)", q)
}

func countJS(loc locator.Locator) string {
	q, _ := json.Marshal(loc.Expr)
	if loc.Kind == locator.KindXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength", q)
	}
	return fmt.Sprintf("document.querySelectorAll(%s).length", q)
}

const visibleJS = `((el) => {
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})(%s)`

// changeJS SendKeys 不会触发 change,填写后补发
func changeJS(loc locator.Locator) string {
	return fmt.Sprintf("((el) => { if (!el) return false; el.dispatchEvent(new Event('change', {bubbles: true})); return true; })(%s)", findJS(loc))
}

func (p *cdpPage) Count(ctx context.Context, loc locator.Locator) (int, error) {
	var n int
	if err := p.run(ctx, 0, chromedp.Evaluate(countJS(loc), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *cdpPage) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	var ok bool
	if err := p.run(ctx, 0, chromedp.Evaluate(fmt.Sprintf(visibleJS, findJS(loc)), &ok)); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *cdpPage) WaitForSelector(ctx context.Context, loc locator.Locator, state executor.WaitState, timeout time.Duration) error {
	var predicate string
	switch state {
	case executor.StateAttached:
		predicate = findJS(loc) + " !== null"
	case executor.StateHidden:
		predicate = "!" + fmt.Sprintf(visibleJS, findJS(loc))
	default:
		predicate = fmt.Sprintf(visibleJS, findJS(loc))
	}
	var done bool
	err := p.run(ctx, timeout, chromedp.Poll(predicate, &done, chromedp.WithPollingInterval(pollEvery)))
	if err != nil && errors.Is(err, executor.ErrTimeout) {
		return fmt.Errorf("%w: %s not %s within %v", executor.ErrTimeout, loc, state, timeout)
	}
	return err
}

func (p *cdpPage) Click(ctx context.Context, loc locator.Locator, opts executor.ClickOptions) error {
	if opts.Force {
		var ok bool
		js := fmt.Sprintf("((el) => { if (!el) return false; el.click(); return true; })(%s)", findJS(loc))
		if err := p.run(ctx, 0, chromedp.Evaluate(js, &ok)); err != nil {
			return fmt.Errorf("javaScript click failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", executor.ErrNoMatchingLocator, loc)
		}
		return nil
	}

	err := p.run(ctx, clickTimeout, chromedp.Click(loc.Expr, by(loc), chromedp.NodeVisible))
	if errors.Is(err, executor.ErrTimeout) {
		return fmt.Errorf("%w: %s not clickable", executor.ErrElementHidden, loc)
	}
	return err
}

func (p *cdpPage) Fill(ctx context.Context, loc locator.Locator, value string) error {
	var dispatched bool
	err := p.run(ctx, clickTimeout,
		chromedp.SetValue(loc.Expr, "", by(loc), chromedp.NodeVisible),
		chromedp.SendKeys(loc.Expr, value, by(loc), chromedp.NodeVisible),
		chromedp.Evaluate(changeJS(loc), &dispatched),
	)
	if errors.Is(err, executor.ErrTimeout) {
		return fmt.Errorf("%w: %s not editable", executor.ErrElementHidden, loc)
	}
	return err
}

func (p *cdpPage) Press(ctx context.Context, loc locator.Locator, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return p.run(ctx, clickTimeout,
		chromedp.Focus(loc.Expr, by(loc)),
		chromedp.KeyEvent(k),
	)
}

// WaitForLoadState chromedp 没有网络空闲事件,三种状态都以 readyState 判断
func (p *cdpPage) WaitForLoadState(ctx context.Context, state executor.LoadState, timeout time.Duration) error {
	predicate := `document.readyState === 'complete'`
	if state == executor.LoadDOMContentLoaded {
		predicate = `document.readyState !== 'loading'`
	}
	var done bool
	return p.run(ctx, timeout, chromedp.Poll(predicate, &done, chromedp.WithPollingInterval(pollEvery)))
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, 0, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to take viewport screenshot: %w", err)
	}
	return buf, nil
}

func by(loc locator.Locator) chromedp.QueryOption {
	if loc.Kind == locator.KindXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func keyFor(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "enter", "return":
		return kb.Enter, nil
	case "tab":
		return kb.Tab, nil
	case "escape", "esc":
		return kb.Escape, nil
	case "backspace":
		return kb.Backspace, nil
	case "delete":
		return kb.Delete, nil
	case "space", " ":
		return " ", nil
	case "arrowup", "up":
		return kb.ArrowUp, nil
	case "arrowdown", "down":
		return kb.ArrowDown, nil
	case "arrowleft", "left":
		return kb.ArrowLeft, nil
	case "arrowright", "right":
		return kb.ArrowRight, nil
	case "home":
		return kb.Home, nil
	case "end":
		return kb.End, nil
	case "pageup":
		return kb.PageUp, nil
	case "pagedown":
		return kb.PageDown, nil
	}
	if r := []rune(name); len(r) == 1 {
		return name, nil
	}
	return "", fmt.Errorf("unsupported key: %s", name)
}

// mapErr 把 chromedp 的错误转换成执行器的错误分类
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
	if errors.Is(err, context.Canceled) || errors.Is(err, chromedp.ErrInvalidContext) || executor.IsSessionError(err) {
		return fmt.Errorf("%w: %v", executor.ErrUpstreamUnavailable, err)
	}
	return err
}

var _ executor.Page = (*cdpPage)(nil)
