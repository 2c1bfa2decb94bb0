package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"limecap/internal/domain"
	"limecap/internal/ports"
)

// Flusher drains the offline upload queue.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Cache is the local authoritative-state mirror updated per sync round.
type Cache interface {
	ReplaceMeetings(ctx context.Context, meetings []domain.MeetingSummary) error
	SetCursor(ctx context.Context, at time.Time) error
}

// Coordinator runs cross-device reconciliation rounds: flush the upload
// queue, fetch the authoritative meeting list, replace the local cache, and
// only then advance the sync cursor. A round already in progress makes a new
// trigger a no-op; partial failure leaves cursor and cache untouched.
type Coordinator struct {
	flusher   Flusher
	directory ports.MeetingDirectory
	cache     Cache
	events    ports.EventSink
	logger    *slog.Logger
	clock     clock.Clock
	interval  time.Duration

	syncMu sync.Mutex

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCoordinator(
	flusher Flusher,
	directory ports.MeetingDirectory,
	cache Cache,
	events ports.EventSink,
	logger *slog.Logger,
	clk clock.Clock,
	interval time.Duration,
) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Coordinator{
		flusher:   flusher,
		directory: directory,
		cache:     cache,
		events:    events,
		logger:    logger,
		clock:     clk,
		interval:  interval,
	}
}

// Sync runs one round. A concurrent trigger is ignored, not queued.
func (c *Coordinator) Sync(ctx context.Context) error {
	if !c.syncMu.TryLock() {
		return nil
	}
	defer c.syncMu.Unlock()

	if err := c.flusher.Flush(ctx); err != nil {
		return fmt.Errorf("sync round: flush queue: %w", err)
	}

	meetings, err := c.directory.ListMeetings(ctx)
	if err != nil {
		return fmt.Errorf("sync round: fetch meetings: %w", err)
	}

	if err := c.cache.ReplaceMeetings(ctx, meetings); err != nil {
		return fmt.Errorf("sync round: update cache: %w", err)
	}

	// Backend-side reconciliation nudge; its failure does not void the round.
	if err := c.directory.TriggerSync(ctx); err != nil {
		c.logger.Warn("sync round: backend trigger failed", "error", err)
	}

	now := c.clock.Now().UTC()
	if err := c.cache.SetCursor(ctx, now); err != nil {
		return fmt.Errorf("sync round: advance cursor: %w", err)
	}

	if c.events != nil {
		at := now
		c.events.SyncCompleted(domain.SyncCursor{LastSyncAt: &at})
	}
	c.logger.Info("sync round complete", "meetings", len(meetings))
	return nil
}

// Start launches the coarse periodic trigger.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.loop(loopCtx)
}

// Stop halts the periodic trigger.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.started = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil {
				c.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}
