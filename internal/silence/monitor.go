package silence

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Monitor watches a live amplitude signal and fires its callback once the
// signal stays below the threshold for a continuous timeout. Any sample at
// or above the threshold restarts the countdown. The callback fires at most
// once per Start/Stop cycle; the monitor does not re-arm until restarted.
type Monitor struct {
	threshold float64
	timeout   time.Duration
	clock     clock.Clock
	onSilence func()

	mu      sync.Mutex
	running bool
	fired   bool
	timer   *clock.Timer
}

func NewMonitor(threshold float64, timeout time.Duration, clk clock.Clock, onSilence func()) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if onSilence == nil {
		onSilence = func() {}
	}
	return &Monitor{threshold: threshold, timeout: timeout, clock: clk, onSilence: onSilence}
}

// Start arms the monitor. Silence is assumed until a loud sample arrives.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.fired = false
	m.timer = m.clock.AfterFunc(m.timeout, m.fire)
}

// Sample feeds one amplitude reading in the 0..1 range.
func (m *Monitor) Sample(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.fired {
		return
	}
	if level >= m.threshold {
		m.timer.Reset(m.timeout)
	}
}

// Stop disarms the monitor and releases its timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) fire() {
	m.mu.Lock()
	if !m.running || m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	callback := m.onSilence
	m.mu.Unlock()

	callback()
}
