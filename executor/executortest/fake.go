// Package executortest 提供内存中的页面实现,用于测试执行器和编排流程
package executortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/locator"
)

// PNG 最小的 PNG 文件头,Screenshot 返回它
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// Element 以定位器表达式为键的假元素
type Element struct {
	Attached bool
	Visible  bool
	Value    string
	Clicks   int
	Forced   int
	Presses  []string
}

// Page 假页面。OnClick / OnPress 钩子在持有锁时调用,可直接修改 Elements。
type Page struct {
	mu sync.Mutex

	Elements map[string]*Element
	OnClick  map[string]func(p *Page)
	OnPress  map[string]func(p *Page)

	// EvalFunc 处理 Evaluate,为 nil 时返回错误
	EvalFunc func(fn string, out any) error

	IdleErr      error
	ClickErr     error
	PanicOnClick bool
	Screenshots  int
	LoadWaits    int
}

func NewPage() *Page {
	return &Page{
		Elements: map[string]*Element{},
		OnClick:  map[string]func(p *Page){},
		OnPress:  map[string]func(p *Page){},
	}
}

// Add 添加元素并返回它
func (p *Page) Add(expr string, visible bool) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := &Element{Attached: true, Visible: visible}
	p.Elements[expr] = el
	return el
}

// Get 按表达式取元素,不存在时返回 nil
func (p *Page) Get(expr string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Elements[expr]
}

// Show 修改元素可见性,元素不存在时创建
func (p *Page) Show(expr string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.show(expr, visible)
}

func (p *Page) show(expr string, visible bool) {
	el, ok := p.Elements[expr]
	if !ok {
		el = &Element{Attached: true}
		p.Elements[expr] = el
	}
	el.Visible = visible
}

// SetVisible 供钩子在持有锁时调用
func (p *Page) SetVisible(expr string, visible bool) {
	p.show(expr, visible)
}

func (p *Page) Evaluate(_ context.Context, fn string, out any) error {
	p.mu.Lock()
	f := p.EvalFunc
	p.mu.Unlock()
	if f == nil {
		return fmt.Errorf("evaluate not supported")
	}
	return f(fn, out)
}

func (p *Page) Count(ctx context.Context, loc locator.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.Elements[loc.Expr]; ok && el.Attached {
		return 1, nil
	}
	return 0, nil
}

func (p *Page) Visible(ctx context.Context, loc locator.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[loc.Expr]
	return ok && el.Attached && el.Visible, nil
}

func (p *Page) satisfied(expr string, state executor.WaitState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[expr]
	switch state {
	case executor.StateAttached:
		return ok && el.Attached
	case executor.StateHidden:
		return !ok || !el.Attached || !el.Visible
	default:
		return ok && el.Attached && el.Visible
	}
}

func (p *Page) WaitForSelector(ctx context.Context, loc locator.Locator, state executor.WaitState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if p.satisfied(loc.Expr, state) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not %s", executor.ErrTimeout, loc.Expr, state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (p *Page) Click(_ context.Context, loc locator.Locator, opts executor.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PanicOnClick {
		panic("click exploded")
	}
	if p.ClickErr != nil {
		return p.ClickErr
	}
	el, ok := p.Elements[loc.Expr]
	if !ok || !el.Attached {
		return fmt.Errorf("element %s not found", loc.Expr)
	}
	if !el.Visible && !opts.Force {
		return fmt.Errorf("%w: %s", executor.ErrElementHidden, loc.Expr)
	}
	el.Clicks++
	if opts.Force {
		el.Forced++
	}
	if hook := p.OnClick[loc.Expr]; hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Fill(_ context.Context, loc locator.Locator, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[loc.Expr]
	if !ok || !el.Attached {
		return fmt.Errorf("element %s not found", loc.Expr)
	}
	if !el.Visible {
		return fmt.Errorf("%w: %s", executor.ErrElementHidden, loc.Expr)
	}
	el.Value = value
	return nil
}

func (p *Page) Press(_ context.Context, loc locator.Locator, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[loc.Expr]
	if !ok || !el.Attached {
		return fmt.Errorf("element %s not found", loc.Expr)
	}
	el.Presses = append(el.Presses, key)
	if hook := p.OnPress[loc.Expr]; hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) WaitForLoadState(ctx context.Context, _ executor.LoadState, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadWaits++
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.IdleErr
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots++
	return PNG, nil
}

// FastTimeouts 测试用的短超时
func FastTimeouts() executor.Timeouts {
	return executor.Timeouts{
		Visible:     150 * time.Millisecond,
		ClickSettle: 0,
		FillSettle:  0,
		NetworkIdle: 10 * time.Millisecond,
		DefaultWait: 20 * time.Millisecond,
		Verify:      40 * time.Millisecond,
	}
}

var _ executor.Page = (*Page)(nil)
