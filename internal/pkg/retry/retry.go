package retry

import (
	"errors"
	"time"
)

// Policy 有界重试策略。与业务逻辑分离：
// 调用方只声明重试次数和退避，不在业务代码里写重试循环
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy 账本写冲突的默认策略
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Backoff:     10 * time.Millisecond,
}

// ErrAttemptsExhausted 重试次数耗尽
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Do 执行 fn 直到成功或次数耗尽。shouldRetry 为 nil 时任何错误都重试
func (p Policy) Do(fn func() error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if i < attempts-1 && p.Backoff > 0 {
			// 线性退避，第 n 次失败后等待 n 倍基础间隔
			time.Sleep(time.Duration(i+1) * p.Backoff)
		}
	}

	return errors.Join(ErrAttemptsExhausted, lastErr)
}
