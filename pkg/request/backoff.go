package request

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// ProviderBackoff spaces out requests to a provider that keeps failing.
// Each failure doubles the cooldown up to maxDelay; each success steps it
// back down by one failure.
type ProviderBackoff struct {
	mu        sync.Mutex
	providers map[string]*cooldown
	baseDelay time.Duration
	maxDelay  time.Duration
	now       func() time.Time
	jitter    func(time.Duration) time.Duration
}

type cooldown struct {
	failures int
	until    time.Time
}

// BackoffStatus is the cooldown of one provider.
type BackoffStatus struct {
	Failures int
	Until    time.Time
}

// NewProviderBackoff creates a backoff with cooldowns between baseDelay and maxDelay.
func NewProviderBackoff(baseDelay, maxDelay time.Duration) *ProviderBackoff {
	return &ProviderBackoff{
		providers: make(map[string]*cooldown),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		now:       time.Now,
		jitter:    tenPercent,
	}
}

func tenPercent(d time.Duration) time.Duration {
	return time.Duration(rand.Float64() * 0.1 * float64(d))
}

// Wait blocks until provider is out of its cooldown or ctx is done.
func (b *ProviderBackoff) Wait(ctx context.Context, provider string) error {
	d := b.Remaining(provider)
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remaining returns how long provider still has to wait.
func (b *ProviderBackoff) Remaining(provider string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.providers[provider]
	if !ok {
		return 0
	}
	return c.until.Sub(b.now())
}

// RecordFailure extends the cooldown of provider and returns its length.
func (b *ProviderBackoff) RecordFailure(provider string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[provider]
	if !ok {
		c = &cooldown{}
		b.providers[provider] = c
	}
	c.failures++
	d := b.delay(c.failures)
	c.until = b.now().Add(d)
	return d
}

// RecordSuccess lets provider recover by one failure. The cooldown is lifted
// once no failures remain.
func (b *ProviderBackoff) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[provider]
	if !ok {
		return
	}
	if c.failures > 0 {
		c.failures--
	}
	if c.failures == 0 {
		delete(b.providers, provider)
	}
}

// Status returns the cooldown of provider. The zero value means none.
func (b *ProviderBackoff) Status(provider string) BackoffStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.providers[provider]; ok {
		return BackoffStatus{Failures: c.failures, Until: c.until}
	}
	return BackoffStatus{}
}

// delay is baseDelay * 2^(failures-1), capped at maxDelay, plus jitter.
func (b *ProviderBackoff) delay(failures int) time.Duration {
	d := b.baseDelay
	for i := 1; i < failures && d < b.maxDelay; i++ {
		d *= 2
	}
	d = min(d, b.maxDelay)
	return d + b.jitter(d)
}
