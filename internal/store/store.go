package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"limecap/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("recording item not found")

const cursorKey = "last_sync_at"

// Store is the device-local durable state: the offline recording queue,
// the meetings cache, and the sync cursor.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the sqlite store and recovers items left in
// "uploading" by an interrupted flush back to "queued".
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	result, err := conn.Exec(`UPDATE recordings SET status = ? WHERE status = ?`,
		domain.UploadStatusQueued, domain.UploadStatusUploading)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("recover interrupted uploads: %w", err)
	}
	if recovered, err := result.RowsAffected(); err == nil && recovered > 0 {
		logger.Info("recovered interrupted uploads", "count", recovered)
	}

	return &Store{conn: conn, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Enqueue persists a recording item with status queued. Re-enqueuing an
// existing id is a no-op regardless of its current status.
func (s *Store) Enqueue(ctx context.Context, item domain.RecordingItem) error {
	if item.Status == "" {
		item.Status = domain.UploadStatusQueued
	}
	_, err := s.conn.ExecContext(
		ctx,
		`INSERT INTO recordings (
			id, meeting_id, created_at, media_path, size_bytes, duration_ms,
			kind, title, status, attempts, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		item.ID,
		nullable(item.MeetingID),
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
		item.MediaPath,
		item.SizeBytes,
		item.Duration.Milliseconds(),
		string(item.Kind),
		nullable(item.Title),
		string(item.Status),
		item.Attempts,
		nullable(item.LastError),
	)
	if err != nil {
		return fmt.Errorf("enqueue recording: %w", err)
	}
	return nil
}

// Get returns one queue item by id.
func (s *Store) Get(ctx context.Context, id string) (domain.RecordingItem, error) {
	row := s.conn.QueryRowContext(ctx, selectRecordings+` WHERE id = ?`, id)
	item, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RecordingItem{}, ErrNotFound
		}
		return domain.RecordingItem{}, fmt.Errorf("get recording: %w", err)
	}
	return item, nil
}

// Pending lists items awaiting delivery (queued or failed) in enqueue order.
func (s *Store) Pending(ctx context.Context) ([]domain.RecordingItem, error) {
	return s.query(ctx, selectRecordings+` WHERE status IN (?, ?) ORDER BY created_at`,
		domain.UploadStatusQueued, domain.UploadStatusFailed)
}

// List returns every queue item, most recent first.
func (s *Store) List(ctx context.Context) ([]domain.RecordingItem, error) {
	return s.query(ctx, selectRecordings+` ORDER BY created_at DESC`)
}

// Claim transitions an item to uploading if it is still pending. The
// conditional update is the mutual-exclusion marker between overlapping
// flushes; it reports false when another flush already owns the item.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE recordings SET status = ?, attempts = attempts + 1
		 WHERE id = ? AND status IN (?, ?)`,
		domain.UploadStatusUploading, id,
		domain.UploadStatusQueued, domain.UploadStatusFailed)
	if err != nil {
		return false, fmt.Errorf("claim recording: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim recording: %w", err)
	}
	return affected == 1, nil
}

// MarkDone records a confirmed upload.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE recordings SET status = ?, last_error = NULL WHERE id = ?`,
		domain.UploadStatusDone, id)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure; the item stays retryable.
func (s *Store) MarkFailed(ctx context.Context, id string, cause string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE recordings SET status = ?, last_error = ? WHERE id = ?`,
		domain.UploadStatusFailed, cause, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ClearDone removes delivered items only.
func (s *Store) ClearDone(ctx context.Context) (int, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM recordings WHERE status = ?`, domain.UploadStatusDone)
	if err != nil {
		return 0, fmt.Errorf("clear done: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear done: %w", err)
	}
	return int(affected), nil
}

// ReplaceMeetings swaps the cached meeting list in one transaction so a
// failed refresh never leaves a partial cache.
func (s *Store) ReplaceMeetings(ctx context.Context, meetings []domain.MeetingSummary) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM meetings_cache`); err != nil {
		return fmt.Errorf("clear meetings cache: %w", err)
	}
	for _, m := range meetings {
		var endedAt any
		if m.EndedAt != nil {
			endedAt = m.EndedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meetings_cache (
				id, title, status, started_at, ended_at, duration_seconds, segment_count
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, nullable(m.Title), m.Status,
			m.StartedAt.UTC().Format(time.RFC3339Nano),
			endedAt, m.DurationSeconds, m.SegmentCount,
		); err != nil {
			return fmt.Errorf("insert cached meeting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache update: %w", err)
	}
	return nil
}

// Meetings returns the cached meeting list, most recent first.
func (s *Store) Meetings(ctx context.Context) ([]domain.MeetingSummary, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, title, status, started_at, ended_at, duration_seconds, segment_count
		 FROM meetings_cache ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cached meetings: %w", err)
	}
	defer rows.Close()

	var meetings []domain.MeetingSummary
	for rows.Next() {
		var m domain.MeetingSummary
		var title, endedAt sql.NullString
		var startedAt string
		var duration sql.NullFloat64
		if err := rows.Scan(&m.ID, &title, &m.Status, &startedAt, &endedAt, &duration, &m.SegmentCount); err != nil {
			return nil, fmt.Errorf("scan cached meeting: %w", err)
		}
		m.Title = title.String
		m.DurationSeconds = duration.Float64
		if m.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if endedAt.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			m.EndedAt = &parsed
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached meetings: %w", err)
	}
	return meetings, nil
}

// Cursor returns the persisted sync cursor.
func (s *Store) Cursor(ctx context.Context) (domain.SyncCursor, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, cursorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncCursor{}, nil
	}
	if err != nil {
		return domain.SyncCursor{}, fmt.Errorf("read sync cursor: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return domain.SyncCursor{}, fmt.Errorf("parse sync cursor: %w", err)
	}
	return domain.SyncCursor{LastSyncAt: &parsed}, nil
}

// SetCursor records the completion time of a fully successful sync round.
func (s *Store) SetCursor(ctx context.Context, at time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sync_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		cursorKey, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write sync cursor: %w", err)
	}
	return nil
}

const selectRecordings = `SELECT id, meeting_id, created_at, media_path, size_bytes,
	duration_ms, kind, title, status, attempts, last_error FROM recordings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (domain.RecordingItem, error) {
	var item domain.RecordingItem
	var meetingID, title, lastError sql.NullString
	var createdAt string
	var durationMS int64
	var status, kind string

	if err := row.Scan(
		&item.ID, &meetingID, &createdAt, &item.MediaPath, &item.SizeBytes,
		&durationMS, &kind, &title, &status, &item.Attempts, &lastError,
	); err != nil {
		return domain.RecordingItem{}, err
	}

	item.MeetingID = meetingID.String
	item.Title = title.String
	item.LastError = lastError.String
	item.Kind = domain.RecordingKind(kind)
	item.Status = domain.UploadStatus(status)
	item.Duration = time.Duration(durationMS) * time.Millisecond

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.RecordingItem{}, fmt.Errorf("parse created_at: %w", err)
	}
	item.CreatedAt = parsed
	return item, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]domain.RecordingItem, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var items []domain.RecordingItem
	for rows.Next() {
		item, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return items, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
