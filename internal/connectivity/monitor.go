package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"

	"limecap/internal/ports"
)

// Monitor polls backend reachability and fires onOnline exactly once per
// offline-to-online transition. The first probe only establishes the
// baseline; startup flushing belongs to the sync coordinator.
type Monitor struct {
	probe    ports.ConnectivityProbe
	events   ports.EventSink
	logger   *slog.Logger
	clock    clock.Clock
	interval time.Duration
	onOnline func()

	debounced func(f func())

	mu      sync.Mutex
	online  bool
	primed  bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMonitor(
	probe ports.ConnectivityProbe,
	events ports.EventSink,
	logger *slog.Logger,
	clk clock.Clock,
	interval time.Duration,
	debounceFor time.Duration,
	onOnline func(),
) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if onOnline == nil {
		onOnline = func() {}
	}

	m := &Monitor{
		probe:    probe,
		events:   events,
		logger:   logger,
		clock:    clk,
		interval: interval,
		onOnline: onOnline,
	}
	if debounceFor > 0 {
		m.debounced = debounce.New(debounceFor)
	} else {
		m.debounced = func(f func()) { f() }
	}
	return m
}

// Start begins the probe loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(loopCtx)
}

// Stop halts probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check runs one probe immediately and applies any transition.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe.Check(ctx)
	m.apply(online)
	return online
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.Check(ctx)

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) apply(online bool) {
	m.mu.Lock()
	wasPrimed := m.primed
	previous := m.online
	m.online = online
	m.primed = true
	m.mu.Unlock()

	if wasPrimed && previous == online {
		return
	}
	if m.events != nil {
		m.events.ConnectivityChanged(online)
	}
	if !wasPrimed {
		return
	}
	if online {
		m.logger.Info("connectivity regained")
		m.debounced(m.onOnline)
	} else {
		m.logger.Info("connectivity lost")
	}
}
