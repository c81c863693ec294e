package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

// saveScreenshot 把诊断截图写到 dir,扩展名根据内容判断
func saveScreenshot(ctx context.Context, dir, label string, data []byte) (string, error) {
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	extension := "png"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		extension = kind.Extension
	}

	// failure_YYYYMMDD_HHMMSS.000_<label>.{ext}
	timestamp := time.Now().Format("20060102_150405.000")
	filename := fmt.Sprintf("failure_%s_%s.%s", timestamp, sanitize(label), extension)
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot file: %w", err)
	}

	logger.Info(ctx, "Screenshot saved to: %s", path)
	return path, nil
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// captureDiagnostics 失败时截图,截图本身的失败只记日志
func (e *Executor) captureDiagnostics(ctx context.Context, label string) {
	if !e.diagnostics {
		return
	}
	// 运行被取消时仍然尽量留下截图
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	data, err := e.page.Screenshot(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to capture diagnostic screenshot: %v", err)
		return
	}
	if _, err := saveScreenshot(ctx, e.screenshotDir, label, data); err != nil {
		logger.Warn(ctx, "Failed to save diagnostic screenshot: %v", err)
	}
}
