package gesture

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"limecap/internal/domain"
)

// Config controls gesture disambiguation timing.
type Config struct {
	LongPress       time.Duration
	DoubleTapWindow time.Duration
	JitterPx        float64
}

func (c Config) withDefaults() Config {
	if c.LongPress <= 0 {
		c.LongPress = 600 * time.Millisecond
	}
	if c.DoubleTapWindow <= 0 {
		c.DoubleTapWindow = 300 * time.Millisecond
	}
	if c.JitterPx <= 0 {
		c.JitterPx = 10
	}
	return c
}

type touchState struct {
	downX, downY float64
	consumed     bool
	dragged      bool
}

// Classifier turns raw pointer events into tap/long-press gestures.
//
// A press held past the long-press threshold emits a LongPress at the
// threshold instant and suppresses tap classification for that touch.
// Completed taps accumulate inside the double-tap window: one tap emits a
// SingleTap once the window elapses, two collapse into a DoubleTap (also
// emitted after the window so a third tap can still override), three emit a
// TripleTap immediately. Movement past the jitter threshold turns the touch
// into a drag and no gesture is emitted. Malformed input (an up without a
// matching down, a second down while one is held) is ignored.
type Classifier struct {
	cfg   Config
	clock clock.Clock
	emit  func(domain.GestureEvent)

	mu          sync.Mutex
	closed      bool
	touch       *touchState
	tapCount    int
	tapX, tapY  float64
	longTimer   *clock.Timer
	windowTimer *clock.Timer
}

// NewClassifier builds a classifier that calls emit once per completed
// interaction. The clock is injected so tests can drive time explicitly.
func NewClassifier(cfg Config, clk clock.Clock, emit func(domain.GestureEvent)) *Classifier {
	if clk == nil {
		clk = clock.New()
	}
	if emit == nil {
		emit = func(domain.GestureEvent) {}
	}
	return &Classifier{cfg: cfg.withDefaults(), clock: clk, emit: emit}
}

// PointerDown begins a touch.
func (c *Classifier) PointerDown(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.touch != nil {
		return
	}

	// Defer the pending tap decision until this touch resolves.
	if c.windowTimer != nil {
		c.windowTimer.Stop()
		c.windowTimer = nil
	}

	c.touch = &touchState{downX: x, downY: y}
	c.longTimer = c.clock.AfterFunc(c.cfg.LongPress, c.fireLongPress)
}

// PointerMove updates an active touch; movement past the jitter threshold
// cancels gesture classification for it.
func (c *Classifier) PointerMove(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.touch == nil || c.touch.dragged || c.touch.consumed {
		return
	}

	dx := x - c.touch.downX
	dy := y - c.touch.downY
	if math.Hypot(dx, dy) <= c.cfg.JitterPx {
		return
	}

	c.touch.dragged = true
	c.tapCount = 0
	c.stopLongTimer()
}

// PointerUp completes a touch.
func (c *Classifier) PointerUp(x, y float64) {
	var event *domain.GestureEvent

	c.mu.Lock()
	if c.closed || c.touch == nil {
		c.mu.Unlock()
		return
	}

	touch := c.touch
	c.touch = nil
	c.stopLongTimer()

	switch {
	case touch.consumed:
		// Long press already emitted for this touch.
	case touch.dragged:
		c.tapCount = 0
	default:
		c.tapCount++
		c.tapX, c.tapY = x, y
		if c.tapCount >= 3 {
			c.tapCount = 0
			event = &domain.GestureEvent{Kind: domain.GestureTripleTap, X: x, Y: y, Time: c.clock.Now()}
		} else {
			c.windowTimer = c.clock.AfterFunc(c.cfg.DoubleTapWindow, c.fireTapWindow)
		}
	}
	c.mu.Unlock()

	if event != nil {
		c.emit(*event)
	}
}

// Close cancels all pending timers; no gesture callbacks fire afterwards.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.touch = nil
	c.tapCount = 0
	c.stopLongTimer()
	if c.windowTimer != nil {
		c.windowTimer.Stop()
		c.windowTimer = nil
	}
}

func (c *Classifier) fireLongPress() {
	var event *domain.GestureEvent

	c.mu.Lock()
	if !c.closed && c.touch != nil && !c.touch.dragged && !c.touch.consumed {
		c.touch.consumed = true
		c.tapCount = 0
		event = &domain.GestureEvent{
			Kind: domain.GestureLongPress,
			X:    c.touch.downX,
			Y:    c.touch.downY,
			Time: c.clock.Now(),
		}
	}
	c.mu.Unlock()

	if event != nil {
		c.emit(*event)
	}
}

func (c *Classifier) fireTapWindow() {
	var event *domain.GestureEvent

	c.mu.Lock()
	if !c.closed && c.touch == nil {
		switch c.tapCount {
		case 1:
			event = &domain.GestureEvent{Kind: domain.GestureSingleTap, X: c.tapX, Y: c.tapY, Time: c.clock.Now()}
		case 2:
			event = &domain.GestureEvent{Kind: domain.GestureDoubleTap, X: c.tapX, Y: c.tapY, Time: c.clock.Now()}
		}
		c.tapCount = 0
		c.windowTimer = nil
	}
	c.mu.Unlock()

	if event != nil {
		c.emit(*event)
	}
}

func (c *Classifier) stopLongTimer() {
	if c.longTimer != nil {
		c.longTimer.Stop()
		c.longTimer = nil
	}
}
