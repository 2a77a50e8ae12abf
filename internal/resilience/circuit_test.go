package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transientErr() error {
	return NewTransientError(eris.New("backend down"), 503)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
			return 0, transientErr()
		})
		require.Error(t, err)
	}

	assert.Equal(t, CircuitOpen, cb.State())

	// Open circuit rejects without invoking fn.
	called := false
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second}).
		WithClock(func() time.Time { return now })

	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())

	// After the reset timeout a probe is allowed through.
	now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	val, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second}).
		WithClock(func() time.Time { return now })

	_, _ = ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, transientErr()
	})

	now = now.Add(11 * time.Second)
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ContractViolationsDoNotTrip(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	// Non-transient errors (a backend speaking the wrong contract) are
	// real failures but not availability failures.
	for i := 0; i < 10; i++ {
		_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
			return 0, eris.New("contract violation at \"lifecycle\"")
		})
		require.Error(t, err)
	}

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ResetClosesAndNotifies(t *testing.T) {
	t.Parallel()

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_, _ = ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, transientErr()
	})
	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}
