package pushgateway

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	// defaultRetryBase はリトライ間隔の初期値。
	defaultRetryBase = 500 * time.Millisecond
	// defaultRetryMaxDelay はリトライ間隔の上限。
	defaultRetryMaxDelay = 10 * time.Second
)

// retryDelay はattempt回目の試行が失敗した後に待つ時間を返す。
// 指数バックオフに±30%のジッターを加える。
func retryDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}

	jitter := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * jitter)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// sleepContext はdだけ待つ。コンテキストが終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
