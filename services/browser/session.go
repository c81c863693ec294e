package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

// Session 一次运行独占的无痕上下文
type Session struct {
	manager *Manager
	browser *rod.Browser
	page    *rod.Page
	wrapped *rodPage

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Page() executor.Page {
	return s.wrapped
}

// Navigate 打开 url 并等待页面加载,加载等待失败只记日志
func (s *Session) Navigate(ctx context.Context, url string) error {
	logger.Info(ctx, "[Navigate] opening %s", url)
	pg := s.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to page: %w", mapErr(ctx, err))
	}
	if err := pg.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn(ctx, "Failed to wait for page load: %v", err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) string {
	info, err := s.page.Context(ctx).Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// ShowStatus 显示运行状态浮层,导航后浮层丢失会在下次调用时重新注入
func (s *Session) ShowStatus(ctx context.Context, text string) {
	if _, err := s.page.Context(ctx).Eval(snapshot.StatusScript(text)); err != nil {
		logger.Warn(ctx, "Failed to show status overlay: %v", err)
	}
}

// Close 关闭页面并销毁无痕上下文,可重复调用
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.page.Close(); err != nil {
			logger.Warn(ctx, "Failed to close page: %v", err)
		}
		if err := s.browser.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to dispose browser context: %w", err)
		}
		s.manager.sessionClosed()
		logger.Info(ctx, "Browser session closed")
	})
	return s.closeErr
}

var _ executor.Session = (*Session)(nil)
