package ports

import (
	"context"
	"io"

	"limecap/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// MeetingClient performs the backend meeting operations used while recording.
type MeetingClient interface {
	StartMeeting(ctx context.Context, title string) (string, error)
	StopMeeting(ctx context.Context, meetingID string) error
	AddBookmark(ctx context.Context, mark domain.Bookmark) error
}

// RecordingUploader delivers a finished media artifact to the backend.
type RecordingUploader interface {
	UploadRecording(ctx context.Context, item domain.RecordingItem, media io.Reader) error
}

// MeetingDirectory fetches authoritative backend state during sync rounds.
type MeetingDirectory interface {
	ListMeetings(ctx context.Context) ([]domain.MeetingSummary, error)
	TriggerSync(ctx context.Context) error
}

// AlertStream is an open per-meeting intelligence feed.
type AlertStream interface {
	Alerts() <-chan domain.CaptureAlert
	Close() error
}

// AlertFeed subscribes to the live alert stream for an active meeting.
type AlertFeed interface {
	Subscribe(ctx context.Context, meetingID string) (AlertStream, error)
}

// QueueStore is the durable offline queue. All status transitions are
// read-modify-write against the persisted row, never an in-memory snapshot.
type QueueStore interface {
	Enqueue(ctx context.Context, item domain.RecordingItem) error
	Get(ctx context.Context, id string) (domain.RecordingItem, error)
	Pending(ctx context.Context) ([]domain.RecordingItem, error)
	List(ctx context.Context) ([]domain.RecordingItem, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause string) error
	ClearDone(ctx context.Context) (int, error)
}

// ConnectivityProbe answers whether the backend is currently reachable.
type ConnectivityProbe interface {
	Check(ctx context.Context) bool
}

// Haptics plays a vibration pattern of alternating on/off millisecond spans.
type Haptics interface {
	Vibrate(pattern []int)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	GestureDetected(gesture domain.GestureEvent)
	AlertReceived(alert domain.CaptureAlert)
	UrgencyChanged(level int)
	QueueItemChanged(item domain.RecordingItem)
	ConnectivityChanged(online bool)
	SyncCompleted(cursor domain.SyncCursor)
	SessionError(code domain.ErrorCode, detail string)
}
