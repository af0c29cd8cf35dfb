package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var hooked []int
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}.
		WithOnRetry(func(attempt int, _ time.Duration, _ error) { hooked = append(hooked, attempt) })

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, hooked)
}

func TestDo_ExhaustsBoundedAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	calls := 0
	p := Fixed(time.Millisecond)
	p.Classify = func(error) Class { return Fatal }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_UnboundedRunsUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Fixed(time.Microsecond), func(context.Context) error {
		calls++
		if calls < 50 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 50, calls)
}

func TestDo_UnboundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Do(ctx, Fixed(5*time.Millisecond), func(context.Context) error { return errFlaky })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValue_ReturnsResult(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), Fixed(time.Millisecond), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, backoff(p, 1))
	assert.Equal(t, 20*time.Millisecond, backoff(p, 2))
	assert.Equal(t, 50*time.Millisecond, backoff(p, 4))
	assert.Equal(t, 50*time.Millisecond, backoff(p, 100))
}
