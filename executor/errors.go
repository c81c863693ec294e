package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

var (
	// ErrTimeout 元素在限定时间内没有变为可见或可操作
	ErrTimeout = errors.New("timeout")
	// ErrNoMatchingLocator 所有候选定位器都没有匹配到元素
	ErrNoMatchingLocator = errors.New("no matching locator")
	// ErrVerificationFailed 动作已执行但没有观察到预期结果
	ErrVerificationFailed = errors.New("verification failed")
	// ErrElementHidden 元素存在但不可见或被遮挡
	ErrElementHidden = errors.New("element hidden")
	// ErrUpstreamUnavailable 决策函数或远程浏览器会话不可用
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	ErrNoMatchingCheckbox = fmt.Errorf("%w: no_matching_checkbox", ErrNoMatchingLocator)
)

// Classify 把错误映射到失败分类
func Classify(err error) models.FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return models.FailureCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, ErrVerificationFailed):
		return models.FailureVerificationFailed
	case errors.Is(err, ErrNoMatchingLocator), errors.Is(err, locator.ErrNoSnapshot):
		return models.FailureNoMatchingLocator
	case errors.Is(err, snapshot.ErrStaleHandle), errors.Is(err, snapshot.ErrUnknownHandle):
		return models.FailureStaleHandle
	case errors.Is(err, models.ErrMalformedAction):
		return models.FailureMalformedAction
	case errors.Is(err, ErrUpstreamUnavailable), IsSessionError(err):
		return models.FailureUpstreamUnavailable
	case errors.Is(err, ErrElementHidden):
		return models.FailureTimeout
	}
	return models.FailureExecution
}

// ToOutcome err 为 nil 时返回 Success
func ToOutcome(err error) models.Outcome {
	if err == nil {
		return models.Success()
	}
	return models.Failure(Classify(err), err.Error())
}

// IsSessionError 检查是否是 CDP session 错误
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Session with given id not found") ||
		strings.Contains(errStr, "Session closed") ||
		strings.Contains(errStr, "Target closed") ||
		strings.Contains(errStr, "websocket: close") ||
		strings.Contains(errStr, "-32001")
}
