package silence

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestFiresAfterContinuousSilence(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	mock.Add(14 * time.Second)
	if fired.Load() != 0 {
		t.Fatalf("fired before timeout")
	}

	mock.Add(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("expected one callback, got %d", fired.Load())
	}
}

func TestLoudSampleRestartsCountdown(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	mock.Add(10 * time.Second)
	monitor.Sample(0.4)
	mock.Add(10 * time.Second)
	if fired.Load() != 0 {
		t.Fatalf("loud sample did not restart countdown")
	}

	mock.Add(5 * time.Second)
	if fired.Load() != 1 {
		t.Fatalf("expected callback after restarted countdown, got %d", fired.Load())
	}
}

func TestQuietSamplesDoNotRestart(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	for i := 0; i < 14; i++ {
		mock.Add(time.Second)
		monitor.Sample(0.001)
	}
	mock.Add(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("quiet samples should not restart the countdown, got %d", fired.Load())
	}
}

func TestThresholdSampleCountsAsLoud(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	mock.Add(14 * time.Second)
	monitor.Sample(0.015)
	mock.Add(14 * time.Second)
	if fired.Load() != 0 {
		t.Fatalf("threshold sample should restart the countdown")
	}
}

func TestFiresAtMostOncePerCycle(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	mock.Add(15 * time.Second)
	monitor.Sample(0.4)
	mock.Add(time.Minute)
	if fired.Load() != 1 {
		t.Fatalf("monitor re-armed within one cycle: %d", fired.Load())
	}

	// A fresh Start re-arms it.
	monitor.Stop()
	monitor.Start()
	mock.Add(15 * time.Second)
	if fired.Load() != 2 {
		t.Fatalf("restart did not re-arm the monitor: %d", fired.Load())
	}
}

func TestStopDisarms(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	mock := clock.NewMock()
	monitor := NewMonitor(0.015, 15*time.Second, mock, func() { fired.Add(1) })

	monitor.Start()
	mock.Add(10 * time.Second)
	monitor.Stop()
	mock.Add(time.Minute)
	if fired.Load() != 0 {
		t.Fatalf("stopped monitor fired")
	}
}
