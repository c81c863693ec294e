package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skolmuirgheasa/resquared-automation/agent"
	"github.com/skolmuirgheasa/resquared-automation/api"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/pkg/metrics"
	"github.com/skolmuirgheasa/resquared-automation/services/browser"
	"github.com/skolmuirgheasa/resquared-automation/services/campaign"
	"github.com/skolmuirgheasa/resquared-automation/services/cdpbrowser"
	"github.com/skolmuirgheasa/resquared-automation/storage"
)

// 构建信息变量，通过Makefile的LDFLAGS注入
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GoVersion = ""
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "resquared",
	Short:         "LLM-driven browser automation for prospecting campaigns",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to config file")
	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newSnapshotCmd(), newMCPCmd(), newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config file, using default config: %v", err)
		cfg = config.Default()
	}
	logger.InitLogger(cfg.Log)
	return cfg
}

// browserBackend rod 和 chromedp 两种实现的共同接口
type browserBackend interface {
	campaign.SessionFactory
	api.BrowserStatus
	Start(ctx context.Context) error
	Stop() error
}

func newBrowserBackend(cfg *config.BrowserConfig) (browserBackend, error) {
	switch cfg.Driver {
	case "", "rod":
		return browser.NewManager(cfg), nil
	case "chromedp":
		return cdpbrowser.NewManager(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s (use rod or chromedp)", cfg.Driver)
	}
}

// app 一次进程内共享的组件
type app struct {
	cfg     *config.Config
	db      *storage.BoltDB
	browser browserBackend
	runner  *campaign.Runner
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := storage.NewBoltDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Println("✓ Database initialization successful")

	backend, err := newBrowserBackend(cfg.Browser)
	if err != nil {
		db.Close()
		return nil, err
	}

	decider, err := agent.NewGeminiDecider(ctx, cfg.LLM)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("✓ Decider initialized (model: %s)", cfg.LLM.Model)

	runner := campaign.NewRunner(backend, decider, campaign.Options{
		Campaign: cfg.Campaign,
		Executor: cfg.Executor,
		Snapshot: cfg.Snapshot,
		Search:   cfg.Search,
		Store:    db,
		Metrics:  metrics.New(nil),
	})

	return &app{cfg: cfg, db: db, browser: backend, runner: runner}, nil
}

// close 按顺序关闭运行中的会话、浏览器和数据库
func (a *app) close(ctx context.Context) {
	if n := a.runner.Active(); n > 0 {
		log.Printf("Closing %d active campaign session(s)...", n)
		if err := a.runner.Shutdown(ctx); err != nil {
			log.Printf("Failed to close sessions: %v", err)
		}
	}

	if a.browser.IsRunning() {
		log.Println("Browser is running, closing...")
		if err := a.browser.Stop(); err != nil {
			log.Printf("Failed to close browser: %v", err)
		} else {
			log.Println("✓ Browser closed")
		}
	}

	log.Println("Closing database...")
	if err := a.db.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	} else {
		log.Println("✓ Database closed")
	}
}

// setupGracefulShutdown 收到信号后清理资源并退出
func setupGracefulShutdown(a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("\nReceived exit signal: %v", sig)
		log.Println("Exiting gracefully...")

		// 最多等待 10 秒
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan struct{})
		go func() {
			a.close(ctx)
			close(done)
		}()

		select {
		case <-ctx.Done():
			log.Println("Cleanup timeout, force exit")
		case <-done:
			log.Println("Cleanup completed")
		}

		log.Println("Program exited")
		os.Exit(0)
	}()

	log.Println("✓ Graceful shutdown mechanism started")
}
