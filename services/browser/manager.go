package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

// defaultLaunchArgs 本地启动 Chrome 时附加的参数
var defaultLaunchArgs = []string{
	"disable-blink-features=AutomationControlled",
	"no-first-run",
	"no-default-browser-check",
	"window-size=1920,1080",
}

// Manager 浏览器管理器。一个浏览器进程(或远程连接)被所有运行共享,
// 每次运行通过 NewSession 拿到独立的无痕上下文。
type Manager struct {
	config *config.BrowserConfig

	mu        sync.Mutex
	browser   *rod.Browser
	launcher  *launcher.Launcher
	isRunning bool
	startTime time.Time
	sessions  int
}

// NewManager 创建浏览器管理器
func NewManager(cfg *config.BrowserConfig) *Manager {
	if cfg == nil {
		cfg = &config.BrowserConfig{Driver: "rod", Headless: isHeadlessEnvironment()}
	}
	return &Manager{config: cfg}
}

func (m *Manager) isRemote() bool {
	return m.config.ControlURL != ""
}

// Start 启动浏览器
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("browser is already running")
	}

	var url string
	if m.isRemote() {
		url = m.config.ControlURL
		logger.Info(ctx, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Info(ctx, "Using remote Chrome browser")
		logger.Info(ctx, "Control URL: %s", url)
		logger.Info(ctx, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	} else {
		logger.Info(ctx, "Starting local Chrome browser (headless=%v)...", m.config.Headless)
		l := launcher.New().
			Headless(m.config.Headless).
			Devtools(false).
			Leakless(false)

		for _, arg := range defaultLaunchArgs {
			if name, value, ok := strings.Cut(arg, "="); ok {
				l = l.Set(flags.Flag(name), value)
			} else {
				l = l.Set(flags.Flag(arg))
			}
		}

		if m.config.BinPath != "" {
			l = l.Bin(m.config.BinPath)
			logger.Info(ctx, "Using browser path: %s", m.config.BinPath)
		}

		if dir := m.config.UserDataDir; dir != "" {
			if err := ensureWritableDir(dir); err != nil {
				logger.Warn(ctx, "User data directory unusable, continuing without it: %v", err)
			} else {
				l = l.UserDataDir(dir)
				logger.Info(ctx, "✓ Using user data directory: %s", dir)
			}
		}

		var err error
		url, err = l.Launch()
		if err != nil {
			if strings.Contains(err.Error(), "already") {
				return fmt.Errorf("Chrome is already running with the same user data directory: %w", err)
			}
			return fmt.Errorf("failed to start browser: %w", err)
		}
		logger.Info(ctx, "Browser control URL: %s", url)
		m.launcher = l
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		if m.launcher != nil {
			m.launcher.Kill()
			m.launcher = nil
		}
		return fmt.Errorf("%w: failed to connect browser: %v", executor.ErrUpstreamUnavailable, err)
	}

	if version, err := browser.Version(); err != nil {
		logger.Warn(ctx, "Failed to get browser version: %v", err)
	} else {
		logger.Info(ctx, "Browser product: %s", version.Product)
	}

	m.browser = browser
	m.isRunning = true
	m.startTime = time.Now()
	logger.Info(ctx, "Browser started successfully")
	return nil
}

// Stop 停止浏览器。远程模式只断开连接,不关闭对方进程。
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}
	ctx := context.Background()

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn(ctx, "Error when closing browser connection: %v", err)
		}
	}
	// 不调用 launcher.Cleanup(),它会删除用户数据目录
	if m.launcher != nil {
		m.launcher.Kill()
		logger.Info(ctx, "Browser process terminated")
	}

	m.browser = nil
	m.launcher = nil
	m.isRunning = false
	logger.Info(ctx, "Browser stopped (remote=%v)", m.isRemote())
	return nil
}

// IsRunning 检查浏览器是否运行
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// Status 获取浏览器状态
func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := map[string]interface{}{
		"is_running": m.isRunning,
		"driver":     "rod",
		"remote":     m.isRemote(),
		"sessions":   m.sessions,
	}
	if m.isRunning {
		status["uptime"] = time.Since(m.startTime).String()
	}
	return status
}

// NewSession 为一次运行创建独立的无痕上下文和 stealth 页面。浏览器未启动时先启动。
func (m *Manager) NewSession(ctx context.Context) (executor.Session, error) {
	if !m.IsRunning() {
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create browser context: %v", executor.ErrUpstreamUnavailable, err)
	}
	page, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("%w: failed to open page: %v", executor.ErrUpstreamUnavailable, err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: defaultUserAgent}); err != nil {
		logger.Warn(ctx, "Failed to set user agent: %v", err)
	}

	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()

	logger.Info(ctx, "Browser session opened (stealth, incognito)")
	return &Session{manager: m, browser: incognito, page: page, wrapped: newPage(page)}, nil
}

func (m *Manager) sessionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions > 0 {
		m.sessions--
	}
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	testFile := filepath.Join(dir, ".test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	return os.Remove(testFile)
}

// isHeadlessEnvironment 检测当前环境是否为无GUI环境
func isHeadlessEnvironment() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}
	if runtime.GOOS == "linux" {
		return os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
	}
	return false
}
