package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"limecap/internal/domain"
	"limecap/internal/ports"
)

// Queue is the durable, at-least-once offline upload queue. Persistence is
// delegated to the store; this layer owns flush orchestration.
type Queue struct {
	store   ports.QueueStore
	upload  ports.RecordingUploader
	events  ports.EventSink
	logger  *slog.Logger
	timeout time.Duration

	flushMu sync.Mutex
}

func New(store ports.QueueStore, upload ports.RecordingUploader, events ports.EventSink, logger *slog.Logger, timeout time.Duration) *Queue {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, upload: upload, events: events, logger: logger, timeout: timeout}
}

// Enqueue durably persists an item with status queued. Idempotent on id.
func (q *Queue) Enqueue(ctx context.Context, item domain.RecordingItem) error {
	item.Status = domain.UploadStatusQueued
	if err := q.store.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ID, err)
	}
	q.events.QueueItemChanged(item)
	return nil
}

// Flush attempts delivery of every queued or failed item. A flush already
// in progress makes the call a no-op; a single item's failure never aborts
// the batch. The only returned error is a storage read failure.
func (q *Queue) Flush(ctx context.Context) error {
	if !q.flushMu.TryLock() {
		return nil
	}
	defer q.flushMu.Unlock()

	pending, err := q.store.Pending(ctx)
	if err != nil {
		q.logger.Error("queue flush: cannot read pending items", "error", err)
		return fmt.Errorf("list pending: %w", err)
	}

	for _, item := range pending {
		if ctx.Err() != nil {
			return nil
		}
		q.flushOne(ctx, item)
	}
	return nil
}

func (q *Queue) flushOne(ctx context.Context, item domain.RecordingItem) {
	claimed, err := q.store.Claim(ctx, item.ID)
	if err != nil {
		q.logger.Error("queue flush: claim failed", "id", item.ID, "error", err)
		return
	}
	if !claimed {
		// Another flush owns this item.
		return
	}

	item.Status = domain.UploadStatusUploading
	item.Attempts++
	q.events.QueueItemChanged(item)

	if err := q.attemptUpload(ctx, item); err != nil {
		q.logger.Warn("queue flush: upload failed", "id", item.ID, "attempts", item.Attempts, "error", err)
		if storeErr := q.store.MarkFailed(ctx, item.ID, err.Error()); storeErr != nil {
			q.logger.Error("queue flush: cannot persist failure", "id", item.ID, "error", storeErr)
		}
		item.Status = domain.UploadStatusFailed
		item.LastError = err.Error()
		q.events.QueueItemChanged(item)
		return
	}

	if storeErr := q.store.MarkDone(ctx, item.ID); storeErr != nil {
		q.logger.Error("queue flush: cannot persist success", "id", item.ID, "error", storeErr)
		return
	}
	item.Status = domain.UploadStatusDone
	item.LastError = ""
	q.events.QueueItemChanged(item)
}

func (q *Queue) attemptUpload(ctx context.Context, item domain.RecordingItem) error {
	media, err := os.Open(item.MediaPath)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer media.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	return q.upload.UploadRecording(uploadCtx, item, media)
}

// List returns every queue item, most recent first.
func (q *Queue) List(ctx context.Context) ([]domain.RecordingItem, error) {
	return q.store.List(ctx)
}

// Item returns the current persisted state of one queue item.
func (q *Queue) Item(ctx context.Context, id string) (domain.RecordingItem, error) {
	return q.store.Get(ctx, id)
}

// ClearDone removes delivered items and reports how many were dropped.
func (q *Queue) ClearDone(ctx context.Context) (int, error) {
	return q.store.ClearDone(ctx)
}
