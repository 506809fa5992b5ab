package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

const (
	// DefaultMaxRetries 提供方调用的默认重试次数
	DefaultMaxRetries = 2

	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
	retryJitter    = 250 * time.Millisecond
)

// WithRetry 执行操作，仅对可重试的提供方错误退避重试
func WithRetry(ctx context.Context, logger *slog.Logger, op string, maxRetries int, fn func() error) error {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var provErr *Error
		if !errors.As(lastErr, &provErr) || !provErr.Retryable || attempt == maxRetries {
			return lastErr
		}

		delay := backoffDelay(attempt)
		logger.Warn("retryable provider error",
			"op", op,
			"code", provErr.Code,
			"attempt", attempt+1,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoffDelay 指数退避：500ms * 2^attempt 加抖动，上限 10 秒
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay << uint(attempt)
	delay += time.Duration(rand.Int63n(int64(retryJitter)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
