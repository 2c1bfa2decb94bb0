package urgency

import (
	"sync"

	"limecap/internal/domain"
	"limecap/internal/ports"
)

// hapticThreshold is the level at which crossing upward plays a cue.
const hapticThreshold = 2

var hapticPatterns = map[int][]int{
	2: {80, 60, 80},
	3: {160, 80, 160, 80, 160},
}

// Controller reconciles the live alert feed into a single urgency signal:
// the maximum level over all undismissed alerts, clamped to 0..3. The
// haptic cue is edge-triggered on crossing into level >= 2, never repeated
// for further alerts at that level.
type Controller struct {
	haptics ports.Haptics
	events  ports.EventSink

	mu     sync.Mutex
	alerts []domain.CaptureAlert
	level  int
}

func NewController(haptics ports.Haptics, events ports.EventSink) *Controller {
	return &Controller{haptics: haptics, events: events}
}

// OnAlert inserts an alert at the head of the list and recomputes urgency.
func (c *Controller) OnAlert(alert domain.CaptureAlert) {
	alert.Urgency = domain.ClampUrgency(alert.Urgency)

	c.mu.Lock()
	previous := c.level
	c.alerts = append([]domain.CaptureAlert{alert}, c.alerts...)
	c.level = maxLevelLocked(c.alerts)
	level := c.level
	c.mu.Unlock()

	if c.events != nil {
		c.events.AlertReceived(alert)
	}
	c.signal(previous, level)
}

// Dismiss removes one alert by id; urgency may drop.
func (c *Controller) Dismiss(id string) bool {
	c.mu.Lock()
	previous := c.level
	removed := false
	kept := c.alerts[:0]
	for _, alert := range c.alerts {
		if alert.ID == id && !removed {
			removed = true
			continue
		}
		kept = append(kept, alert)
	}
	c.alerts = kept
	c.level = maxLevelLocked(c.alerts)
	level := c.level
	c.mu.Unlock()

	if removed {
		c.signal(previous, level)
	}
	return removed
}

// Reset clears all alerts on session end and drops urgency to 0.
func (c *Controller) Reset() {
	c.mu.Lock()
	previous := c.level
	c.alerts = nil
	c.level = 0
	c.mu.Unlock()

	c.signal(previous, 0)
}

// Level returns the current urgency level.
func (c *Controller) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Alerts returns the undismissed alerts, most recent first.
func (c *Controller) Alerts() []domain.CaptureAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CaptureAlert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func (c *Controller) signal(previous, level int) {
	if previous == level {
		return
	}
	if c.events != nil {
		c.events.UrgencyChanged(level)
	}
	if c.haptics != nil && previous < hapticThreshold && level >= hapticThreshold {
		if pattern, ok := hapticPatterns[level]; ok {
			c.haptics.Vibrate(pattern)
		}
	}
}

func maxLevelLocked(alerts []domain.CaptureAlert) int {
	level := 0
	for _, alert := range alerts {
		if alert.Urgency > level {
			level = alert.Urgency
		}
	}
	return level
}
