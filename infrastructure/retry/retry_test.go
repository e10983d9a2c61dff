package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-vector-index/domain"
)

// instant returns a policy that records waits instead of sleeping.
func instant(maxAttempts int, waits *[]time.Duration) Policy {
	p := Default()
	p.MaxAttempts = maxAttempts
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	p.Jitter = func(lo, hi time.Duration) time.Duration { return hi }
	return p
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	for _, k := range []int{0, 1, 3, 14} {
		var waits []time.Duration
		calls := 0
		err := instant(15, &waits).Do(context.Background(), func(context.Context) error {
			calls++
			if calls <= k {
				return domain.Transient("call", errors.New("503"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, k+1, calls, "k=%d", k)
		assert.Len(t, waits, k)
	}
}

func TestDo_ExhaustsAfterMaxAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	cause := errors.New("429")
	err := instant(4, &waits).Do(context.Background(), func(context.Context) error {
		calls++
		return domain.Transient("call", cause)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, waits, 3)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, cause)
	assert.True(t, domain.IsTransient(err))
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := instant(15, &waits).Do(context.Background(), func(context.Context) error {
		calls++
		return domain.Permanent("call", errors.New("400"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Default()
	p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return domain.Transient("call", errors.New("timeout"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWindow_GrowsExponentiallyWithinBounds(t *testing.T) {
	p := Policy{MinWait: 15 * time.Second, MaxWait: 60 * time.Second, Multiplier: 1}

	lo, hi := p.Window(1)
	assert.Equal(t, 15*time.Second, lo)
	assert.Equal(t, 15*time.Second, hi)

	_, hi = p.Window(5)
	assert.Equal(t, 16*time.Second, hi)

	_, hi = p.Window(6)
	assert.Equal(t, 32*time.Second, hi)

	_, hi = p.Window(7)
	assert.Equal(t, 60*time.Second, hi)

	_, hi = p.Window(200)
	assert.Equal(t, 60*time.Second, hi)
}

func TestUniformStaysInWindow(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := uniform(15*time.Second, 16*time.Second)
		require.GreaterOrEqual(t, d, 15*time.Second)
		require.LessOrEqual(t, d, 16*time.Second)
	}
	assert.Equal(t, time.Second, uniform(time.Second, time.Second))
}

func TestWaitsUseWindow(t *testing.T) {
	var waits []time.Duration
	p := instant(8, &waits)
	_ = p.Do(context.Background(), func(context.Context) error {
		return domain.Transient("call", errors.New("503"))
	})
	require.Len(t, waits, 7)
	for i, w := range waits {
		_, hi := p.Window(i + 1)
		assert.Equal(t, hi, w)
	}
}
