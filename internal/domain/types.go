package domain

import "time"

// SessionState models the capture lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateStopping  SessionState = "stopping"
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonCaptureCold        SessionStateReason = "capture_cold"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonSilenceTimeout     SessionStateReason = "silence_timeout"
	SessionReasonEmergencyStop      SessionStateReason = "emergency_stop"
	SessionReasonFinalizing         SessionStateReason = "finalizing"
	SessionReasonUploaded           SessionStateReason = "uploaded"
	SessionReasonQueuedOffline      SessionStateReason = "queued_offline"
	SessionReasonAudioSafe          SessionStateReason = "audio_safe"
	SessionReasonRecordingDiscarded SessionStateReason = "recording_discarded"
	SessionReasonMemoStarted        SessionStateReason = "memo_started"
	SessionReasonMemoStopped        SessionStateReason = "memo_stopped"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeAudioStart ErrorCode = "audio_start"
	ErrorCodeAudioStop  ErrorCode = "audio_stop"
	ErrorCodeFinalize   ErrorCode = "finalize"
	ErrorCodeBookmark   ErrorCode = "bookmark"
	ErrorCodeUpload     ErrorCode = "upload"
	ErrorCodeStorage    ErrorCode = "storage"
	ErrorCodeAlertFeed  ErrorCode = "alert_feed"
	ErrorCodeSync       ErrorCode = "sync"
)

// GestureKind classifies one completed pointer interaction.
type GestureKind string

const (
	GestureSingleTap GestureKind = "single_tap"
	GestureDoubleTap GestureKind = "double_tap"
	GestureTripleTap GestureKind = "triple_tap"
	GestureLongPress GestureKind = "long_press"
)

// GestureEvent is produced and consumed synchronously, never persisted.
type GestureEvent struct {
	Kind GestureKind `json:"kind"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
	Time time.Time   `json:"time"`
}

// AlertCategory labels intelligence alerts from the live feed.
type AlertCategory string

const (
	AlertCategoryContradiction AlertCategory = "contradiction"
	AlertCategoryConnection    AlertCategory = "connection"
	AlertCategoryActionItem    AlertCategory = "action-item"
	AlertCategoryInsight       AlertCategory = "insight"
)

// CaptureAlert is one intelligence alert held for the session duration.
type CaptureAlert struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Category   AlertCategory `json:"category"`
	Message    string        `json:"message"`
	Urgency    int           `json:"urgency"`
	Confidence float64       `json:"confidence,omitempty"`
}

// UrgencyMax is the highest representable urgency level.
const UrgencyMax = 3

// ClampUrgency clamps a level into the valid 0..3 range.
func ClampUrgency(level int) int {
	if level < 0 {
		return 0
	}
	if level > UrgencyMax {
		return UrgencyMax
	}
	return level
}

// UploadStatus tracks a queued recording through at-least-once delivery.
type UploadStatus string

const (
	UploadStatusQueued    UploadStatus = "queued"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusDone      UploadStatus = "done"
	UploadStatusFailed    UploadStatus = "failed"
)

// RecordingKind identifies what a captured media artifact is.
type RecordingKind string

const (
	RecordingKindMeetingAudio RecordingKind = "meeting-audio"
	RecordingKindVoiceMemo    RecordingKind = "voice-memo"
)

// RecordingItem is a durable offline queue entry. The media payload lives
// on disk at MediaPath; the row only carries its location and size.
type RecordingItem struct {
	ID        string        `json:"id"`
	MeetingID string        `json:"meetingId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	MediaPath string        `json:"mediaPath"`
	SizeBytes int64         `json:"sizeBytes"`
	Duration  time.Duration `json:"duration"`
	Kind      RecordingKind `json:"kind"`
	Title     string        `json:"title,omitempty"`
	Status    UploadStatus  `json:"status"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"lastError,omitempty"`
}

// BookmarkPriority marks a bookmark as normal or high priority.
type BookmarkPriority string

const (
	BookmarkPriorityNormal BookmarkPriority = "normal"
	BookmarkPriorityHigh   BookmarkPriority = "high"
)

// Bookmark is a timestamped marker inside an active meeting.
type Bookmark struct {
	MeetingID string           `json:"meetingId"`
	Offset    time.Duration    `json:"offset"`
	Priority  BookmarkPriority `json:"priority"`
}

// MeetingSummary is one row of the authoritative meeting list.
type MeetingSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds float64    `json:"durationSeconds,omitempty"`
	SegmentCount    int        `json:"segmentCount"`
}

// SyncCursor records when the last fully successful sync round finished.
type SyncCursor struct {
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// StopResult is returned once a recording is stopped and handed off.
type StopResult struct {
	MeetingID string        `json:"meetingId"`
	ItemID    string        `json:"itemId"`
	MediaPath string        `json:"mediaPath"`
	Duration  time.Duration `json:"duration"`
	Uploaded  bool          `json:"uploaded"`
}

// Status summarizes the current runtime status.
type Status struct {
	State          SessionState `json:"state"`
	Active         bool         `json:"active"`
	MeetingID      string       `json:"meetingId,omitempty"`
	ElapsedSeconds float64      `json:"elapsedSeconds,omitempty"`
	Online         bool         `json:"online"`
	Message        string       `json:"message,omitempty"`
}
