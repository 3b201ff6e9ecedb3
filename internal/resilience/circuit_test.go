package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func failing(_ context.Context) error { return errUpstream }
func passing(_ context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(_ context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.NoError(t, cb.Execute(ctx, passing))
	_ = cb.Execute(ctx, failing)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(ctx, failing)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->open"}, transitions)
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, CircuitClosed, cb.State(), "non-transient errors do not trip")
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), failing)
			} else {
				_ = cb.Execute(context.Background(), passing)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	a := sb.Get("overpass")
	assert.Same(t, a, sb.Get("overpass"))
	assert.NotSame(t, a, sb.Get("places"))

	_ = a.Execute(context.Background(), failing)
	states := sb.States()
	assert.Equal(t, "open", states["overpass"])
	assert.Equal(t, "closed", states["places"])
}

func TestServiceBreakers_IgnoreCanceledCaller(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb := sb.Get("overpass_mirror")

	err := cb.Execute(context.Background(), func(context.Context) error {
		return eris.Wrap(context.Canceled, "overpass: interpreter")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), failing)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
