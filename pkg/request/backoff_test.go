package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackoff returns a backoff on a frozen clock without jitter.
func newTestBackoff(base, maxDelay time.Duration) (*ProviderBackoff, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewProviderBackoff(base, maxDelay)
	b.now = func() time.Time { return now }
	b.jitter = func(time.Duration) time.Duration { return 0 }
	return b, &now
}

func TestProviderBackoff_Delay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{7, 60 * time.Second},
		{40, 60 * time.Second},
	}
	for _, tt := range tests {
		b, now := newTestBackoff(time.Second, time.Minute)
		var got time.Duration
		for range tt.failures {
			got = b.RecordFailure("nominatim")
		}
		assert.Equal(t, tt.want, got, "failures=%d", tt.failures)

		st := b.Status("nominatim")
		assert.Equal(t, tt.failures, st.Failures)
		assert.Equal(t, now.Add(tt.want), st.Until)
		assert.Equal(t, tt.want, b.Remaining("nominatim"))
	}
}

func TestProviderBackoff_JitterIsBounded(t *testing.T) {
	b := NewProviderBackoff(time.Second, time.Minute)
	for range 50 {
		d := b.RecordFailure("p")
		b.RecordSuccess("p")
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestProviderBackoff_Recovery(t *testing.T) {
	b, _ := newTestBackoff(time.Second, time.Minute)
	for range 3 {
		b.RecordFailure("places")
	}
	b.RecordFailure("nominatim")

	b.RecordSuccess("places")
	assert.Equal(t, 2, b.Status("places").Failures)

	b.RecordSuccess("places")
	b.RecordSuccess("places")
	assert.Equal(t, BackoffStatus{}, b.Status("places"))
	assert.Zero(t, b.Remaining("places"))

	assert.Equal(t, 1, b.Status("nominatim").Failures, "providers are isolated")
	b.RecordSuccess("unknown")
}

func TestProviderBackoff_Wait(t *testing.T) {
	b := NewProviderBackoff(10*time.Second, time.Minute)
	require.NoError(t, b.Wait(context.Background(), "fresh"))

	b.RecordFailure("slow")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.ErrorIs(t, b.Wait(ctx, "slow"), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
