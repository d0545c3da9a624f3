package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithAttempts(5), WithDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorWhenBudgetSpent(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, WithAttempts(2), WithDelay(time.Millisecond))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoAbortStopsImmediately(t *testing.T) {
	cause := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Abort(cause)
	}, WithUnlimitedAttempts(), WithDelay(time.Millisecond))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error {
		return errors.New("never succeeds")
	}, WithUnlimitedAttempts(), WithDelay(time.Millisecond))

	assert.ErrorIs(t, err, context.Canceled)
}
