package manager

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areimx/faceit-ext-chatbot-service/internal/dataplane/client"
)

// Restart backoff doubles from five minutes and caps at an hour.
func TestRestartDelay(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{4, 40 * time.Minute},
		{5, time.Hour},
		{6, time.Hour},
		{20, time.Hour},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, restartDelay(c.failures), "failures=%d", c.failures)
	}
}

type fakeChild struct {
	mu      sync.Mutex
	pid     int
	exitCh  chan error
	signals []os.Signal
	killed  bool
}

func newFakeChild(pid int) *fakeChild {
	return &fakeChild{pid: pid, exitCh: make(chan error, 1)}
}

func (f *fakeChild) PID() int { return f.pid }

func (f *fakeChild) Signal(sig os.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	return nil
}

func (f *fakeChild) Kill() error {
	f.mu.Lock()
	f.killed = true
	f.mu.Unlock()
	select {
	case f.exitCh <- fmt.Errorf("killed"):
	default:
	}
	return nil
}

func (f *fakeChild) Wait() error { return <-f.exitCh }

func (f *fakeChild) exit(err error) { f.exitCh <- err }

func newTestManager(t *testing.T) (*Manager, *sync.Map) {
	t.Helper()
	m := New(ManagerConfig{WorkerBinary: "worker"}, client.New("http://127.0.0.1:1", ""))

	spawned := &sync.Map{}
	var pid int
	var mu sync.Mutex
	m.spawn = func(botID int) (childHandle, error) {
		mu.Lock()
		pid++
		child := newFakeChild(pid)
		mu.Unlock()
		spawned.Store(botID, child)
		return child, nil
	}
	t.Cleanup(m.Stop)
	return m, spawned
}

func TestChildExitSchedulesBackoffRestart(t *testing.T) {
	m, spawned := newTestManager(t)

	m.startChild(7)
	v, ok := spawned.Load(7)
	require.True(t, ok)
	child := v.(*fakeChild)

	child.exit(fmt.Errorf("exit status 1"))

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		rec, ok := m.failures[7]
		_, timerSet := m.restarts[7]
		return ok && rec.Count == 1 && timerSet
	}, 2*time.Second, 10*time.Millisecond)

	m.mu.Lock()
	_, alive := m.children[7]
	m.mu.Unlock()
	assert.False(t, alive)
}

func TestStartChildIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	m.startChild(3)
	m.startChild(3)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.children, 1)
}

func TestRecoverySweepRevivesLongFailedBots(t *testing.T) {
	m, spawned := newTestManager(t)

	base := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.mu.Lock()
	m.failures[9] = &failureRecord{Count: 6, LastFailure: base.Add(-2 * time.Hour)}
	m.failures[8] = &failureRecord{Count: 6, LastFailure: base.Add(-10 * time.Minute)}
	m.failures[7] = &failureRecord{Count: 2, LastFailure: base.Add(-2 * time.Hour)}
	m.mu.Unlock()

	m.recoverySweep()

	_, revived := spawned.Load(9)
	assert.True(t, revived, "stale failure record past the threshold is revived")

	_, tooRecent := spawned.Load(8)
	assert.False(t, tooRecent, "recent failures keep their backoff")

	_, fewFailures := spawned.Load(7)
	assert.False(t, fewFailures, "counters under the threshold are left alone")

	m.mu.Lock()
	assert.Equal(t, 0, m.failures[9].Count)
	assert.Equal(t, 2, m.failures[7].Count)
	m.mu.Unlock()
}

func TestShutdownKillsStragglers(t *testing.T) {
	m, spawned := newTestManager(t)

	m.startChild(1)
	m.startChild(2)

	v1, _ := spawned.Load(1)
	v2, _ := spawned.Load(2)
	c1 := v1.(*fakeChild)
	c2 := v2.(*fakeChild)

	// c1 exits on SIGTERM, c2 ignores it until killed.
	go func() {
		time.Sleep(50 * time.Millisecond)
		c1.exit(nil)
	}()

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace + 5*time.Second):
		t.Fatal("shutdown did not complete")
	}

	c1.mu.Lock()
	assert.Contains(t, c1.signals, os.Signal(syscall.SIGTERM))
	c1.mu.Unlock()

	c2.mu.Lock()
	assert.True(t, c2.killed, "straggler is killed after the grace period")
	c2.mu.Unlock()
}
