package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transient() error {
	return &model.Error{Kind: model.KindBackendError, Message: "connection refused", Retryable: true}
}

func TestDo(t *testing.T) {
	fatal := model.NewError(model.KindBackendError, "status 500")

	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"success first", []error{nil}, 2, 1, false},
		{"transient then success", []error{transient(), nil}, 2, 2, false},
		{"transient twice exhausts", []error{transient(), transient(), nil}, 2, 2, true},
		{"non-retryable stops", []error{fatal, nil}, 3, 1, true},
		{"permanent stops", []error{Permanent(transient()), nil}, 3, 1, true},
		{"single attempt", []error{transient(), nil}, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{MaxAttempts: tt.attempts}
			calls := 0
			err := p.Do(context.Background(), "test", func(_ context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				return tt.errs[calls-1]
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	inner := transient()
	err := Policy{MaxAttempts: 3}.Do(context.Background(), "test", func(context.Context, int) error {
		return Permanent(inner)
	})
	assert.Same(t, inner, err)
	assert.Nil(t, Permanent(nil))
}

func TestDo_WaitsOnClock(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	p := Policy{MaxAttempts: 2, Backoff: time.Second, Clock: clk}

	done := make(chan error, 1)
	calls := make(chan int, 2)
	go func() {
		done <- p.Do(context.Background(), "test", func(_ context.Context, attempt int) error {
			calls <- attempt
			if attempt == 1 {
				return transient()
			}
			return nil
		})
	}()

	require.Equal(t, 1, <-calls)
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Second)
	require.Equal(t, 2, <-calls)
	require.NoError(t, <-done)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, Backoff: time.Hour}
	err := p.Do(ctx, "test", func(context.Context, int) error { return transient() })
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, model.ErrBackend))
}
