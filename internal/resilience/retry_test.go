package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDoVal_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	val, err := DoVal(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(eris.New("upstream 503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, eris.New("invalid image")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := DoVal(context.Background(), fastPolicy(4), func(context.Context) (int, error) {
		calls++
		return 0, Transient(eris.New("overloaded"), 529)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, IsTransient(err))
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	t.Parallel()

	sentinel := eris.New("retry me")
	p := fastPolicy(3)
	p.ShouldRetry = func(err error) bool { return eris.Is(err, sentinel) }

	calls := 0
	_, err := DoVal(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	p.OnRetry = func(int, error) { cancel() }

	calls := 0
	_, err := DoVal(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, Transient(eris.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		if calls == 1 {
			return Transient(eris.New("reset"), 0)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(10))

	p.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { RetryLogger("label_scan")(1, eris.New("boom")) })
}
