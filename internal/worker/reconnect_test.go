package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Backoff doubles from 5s and caps at 5 minutes; the circuit trips on
// the tenth consecutive failure.
func TestReconnectBackoffDoubling(t *testing.T) {
	r := newReconnectState()
	now := time.Now()

	expected := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		5 * time.Minute,
		5 * time.Minute,
		5 * time.Minute,
		5 * time.Minute,
	}

	for i, want := range expected {
		got := r.schedule(now)
		assert.Equal(t, want, got, "attempt %d", i+1)
		if i+1 < circuitBreakerLimit {
			assert.False(t, r.tripped(), "attempt %d must not trip", i+1)
		}
	}

	assert.Equal(t, circuitBreakerLimit, r.Attempts)
	assert.True(t, r.tripped())
}

func TestReconnectResetOnSuccess(t *testing.T) {
	r := newReconnectState()
	now := time.Now()
	for i := 0; i < 6; i++ {
		r.schedule(now)
	}

	r.reset()
	assert.Equal(t, 0, r.Attempts)
	assert.Equal(t, 5*time.Second, r.schedule(now))
}
