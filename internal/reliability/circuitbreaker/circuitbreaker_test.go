package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	b := New(2, 1, 30*time.Second)
	b.SetClock(func() time.Time { return now })

	var transitions []string
	b.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateClosed, b.State())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpen)

	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())
	require.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	b := New(1, 2, time.Second)
	b.SetClock(func() time.Time { return now })

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestDisabledBreakerNeverOpens(t *testing.T) {
	b := New(0, 1, time.Second)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	require.NoError(t, b.Allow())

	var nilBreaker *Breaker
	require.NoError(t, nilBreaker.Allow())
}
