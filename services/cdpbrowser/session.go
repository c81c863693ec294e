package cdpbrowser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

const navigationTimeout = 60 * time.Second

type Session struct {
	manager *Manager
	page    *cdpPage
	cancel  context.CancelFunc

	closeOnce sync.Once
}

func (s *Session) Page() executor.Page {
	return s.page
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	logger.Info(ctx, "[Navigate] opening %s", url)
	if err := s.page.run(ctx, navigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to page: %w", err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) string {
	var url string
	if err := s.page.run(ctx, 0, chromedp.Location(&url)); err != nil {
		return ""
	}
	return url
}

func (s *Session) ShowStatus(ctx context.Context, text string) {
	if err := s.page.Evaluate(ctx, snapshot.StatusScript(text), nil); err != nil {
		logger.Warn(ctx, "Failed to show status overlay: %v", err)
	}
}

// Close 取消标签页上下文,chromedp 随之关闭标签页和它的浏览器上下文
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.manager.sessionClosed()
		logger.Info(ctx, "Browser session closed")
	})
	return nil
}

var _ executor.Session = (*Session)(nil)
