package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateChangeSubscription(t *testing.T) {
	dp := newFakeDataPlane(t)
	w := newTestWorker(t, dp)

	ch := w.Subscribe(4)

	w.mu.Lock()
	w.setStateLocked(StateFetchingCreds)
	w.setStateLocked(StateConnecting)
	w.mu.Unlock()

	ev := <-ch
	assert.Equal(t, StateInit, ev.From)
	assert.Equal(t, StateFetchingCreds, ev.To)

	ev = <-ch
	assert.Equal(t, StateConnecting, ev.To)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	dp := newFakeDataPlane(t)
	w := newTestWorker(t, dp)

	ch := w.Subscribe(1)

	w.mu.Lock()
	w.setStateLocked(StateFetchingCreds)
	w.setStateLocked(StateConnecting)
	w.setStateLocked(StateOnline)
	w.mu.Unlock()

	// Only the first transition fit; the worker never blocked.
	ev := <-ch
	require.Equal(t, StateFetchingCreds, ev.To)
	select {
	case ev = <-ch:
		t.Fatalf("unexpected buffered event: %+v", ev)
	default:
	}
}
