package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 100 * time.Millisecond

func waitRuns(t *testing.T, d *Debouncer, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Runs() == want }, time.Second, 5*time.Millisecond)
}

func TestTriggerRunsAfterWindow(t *testing.T) {
	mock := clock.NewMock()
	d := New(mock, window)

	var ran atomic.Int32
	d.Trigger(func() { ran.Add(1) })
	assert.True(t, d.Pending())

	mock.Add(window / 2)
	assert.Equal(t, int32(0), ran.Load(), "should not run before the window")

	mock.Add(window / 2)
	waitRuns(t, d, 1)
	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending())
}

func TestBurstCollapsesToLastTask(t *testing.T) {
	mock := clock.NewMock()
	d := New(mock, window)

	var mu sync.Mutex
	var got []int

	for i := 0; i < 10; i++ {
		i := i
		d.Trigger(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		mock.Add(window / 4)
	}

	mock.Add(window)
	waitRuns(t, d, 1)

	// Give a stray timer the chance to misfire
	mock.Add(5 * window)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{9}, got)
	assert.Equal(t, uint64(1), d.Runs())
}

func TestTriggerAfterRunSchedulesAgain(t *testing.T) {
	mock := clock.NewMock()
	d := New(mock, window)

	var ran atomic.Int32
	d.Trigger(func() { ran.Add(1) })
	mock.Add(window)
	waitRuns(t, d, 1)

	d.Trigger(func() { ran.Add(1) })
	mock.Add(window)
	waitRuns(t, d, 2)
	require.Eventually(t, func() bool { return ran.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestStopCancelsPending(t *testing.T) {
	mock := clock.NewMock()
	d := New(mock, window)

	var ran atomic.Int32
	d.Trigger(func() { ran.Add(1) })
	d.Stop()
	d.Stop()

	assert.False(t, d.Pending())

	d.Trigger(func() { ran.Add(1) })
	assert.False(t, d.Pending(), "Trigger after Stop must be ignored")

	mock.Add(5 * window)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())
}

func TestNilClockUsesWallTime(t *testing.T) {
	d := New(nil, 10*time.Millisecond)
	defer d.Stop()

	done := make(chan struct{})
	d.Trigger(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run on wall clock")
	}
	assert.Equal(t, 10*time.Millisecond, d.Window())
}
