// Package cdpbrowser 基于 chromedp 的浏览器后端,与 services/browser 提供相同的会话接口
package cdpbrowser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// Manager 共享一个 Chrome 进程(或远程连接),每个会话是一个独立浏览器上下文里的标签页
type Manager struct {
	cfg *config.BrowserConfig

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sessions    int
}

func NewManager(cfg *config.BrowserConfig) *Manager {
	if cfg == nil {
		cfg = &config.BrowserConfig{Driver: "chromedp", Headless: true}
	}
	return &Manager{cfg: cfg}
}

// ensureAllocator 按需创建分配器,调用方持有 m.mu
func (m *Manager) ensureAllocator(ctx context.Context) {
	if m.allocCtx != nil && m.allocCtx.Err() == nil {
		return
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}

	base := context.Background()
	if url := strings.TrimSpace(m.cfg.ControlURL); url != "" {
		logger.Info(ctx, "Using remote Chrome browser: %s", url)
		m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(base, url)
		return
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if path := strings.TrimSpace(m.cfg.BinPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	if dir := strings.TrimSpace(m.cfg.UserDataDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			opts = append(opts, chromedp.UserDataDir(dir))
		}
	}
	logger.Info(ctx, "Starting local Chrome browser via chromedp (headless=%v)", m.cfg.Headless)
	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(base, opts...)
}

// Start 启动浏览器进程并确认可以打开标签页
func (m *Manager) Start(ctx context.Context) error {
	s, err := m.NewSession(ctx)
	if err != nil {
		return err
	}
	return s.Close(ctx)
}

// NewSession 在新的浏览器上下文里打开标签页
func (m *Manager) NewSession(ctx context.Context) (executor.Session, error) {
	m.mu.Lock()
	m.ensureAllocator(ctx)
	allocCtx := m.allocCtx
	m.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithNewBrowserContext())
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to open tab: %v", executor.ErrUpstreamUnavailable, err)
	}

	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()

	logger.Info(ctx, "Browser session opened (chromedp)")
	return &Session{manager: m, page: &cdpPage{tab: tabCtx}, cancel: cancel}, nil
}

func (m *Manager) sessionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions > 0 {
		m.sessions--
	}
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocCtx != nil && m.allocCtx.Err() == nil
}

func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"is_running": m.allocCtx != nil && m.allocCtx.Err() == nil,
		"driver":     "chromedp",
		"remote":     m.cfg.ControlURL != "",
		"sessions":   m.sessions,
	}
}

// Stop 结束分配器;本地模式会关闭 Chrome 进程
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
		m.allocCtx = nil
	}
	return nil
}
