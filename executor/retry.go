package executor

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// WithRetry 最多执行 op maxAttempts 次,只有 isRetryable 返回 true 的错误才会重试。
// 返回最后一次的错误;ctx 取消时立即停止。
func WithRetry(ctx context.Context, op func() error, maxAttempts int, isRetryable func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return false }
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// isSearchRetryable 搜索框协议只在校验失败或元素隐藏时重来一轮
func isSearchRetryable(err error) bool {
	return errors.Is(err, ErrVerificationFailed) || errors.Is(err, ErrElementHidden)
}

func isHidden(err error) bool {
	return errors.Is(err, ErrElementHidden)
}
