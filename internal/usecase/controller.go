package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"limecap/internal/audio"
	"limecap/internal/domain"
	"limecap/internal/gesture"
	"limecap/internal/ports"
	"limecap/internal/silence"
)

var (
	ErrNoActiveSession = errors.New("no active capture session")
	ErrSessionActive   = errors.New("a capture session is already active")
	ErrStopInProgress  = errors.New("capture session is already stopping")
)

// recordingQueue is the durable upload path for finished artifacts.
type recordingQueue interface {
	Enqueue(ctx context.Context, item domain.RecordingItem) error
	Flush(ctx context.Context) error
	Item(ctx context.Context, id string) (domain.RecordingItem, error)
}

// alertSink receives live alerts and is reset on session end.
type alertSink interface {
	OnAlert(alert domain.CaptureAlert)
	Reset()
}

type onlineChecker interface {
	IsOnline() bool
}

// Config controls capture session behavior.
type Config struct {
	Audio            ports.AudioConfig
	Gesture          gesture.Config
	SilenceThreshold float64
	SilenceTimeout   time.Duration
	RingSeconds      int
	ChunkSize        int
	MediaDir         string
}

// CaptureController orchestrates the recording lifecycle: gesture actions,
// silence-triggered auto-stop, the nested voice-memo sub-capture, and the
// atomic hand-off of finished artifacts into the offline upload queue.
type CaptureController struct {
	audio   ports.AudioCapture
	client  ports.MeetingClient
	feed    ports.AlertFeed
	queue   recordingQueue
	urgency alertSink
	online  onlineChecker
	events  ports.EventSink
	logger  *slog.Logger
	clock   clock.Clock
	cfg     Config

	mu      sync.Mutex
	current *activeCapture
}

func NewCaptureController(
	audioCapture ports.AudioCapture,
	client ports.MeetingClient,
	feed ports.AlertFeed,
	queue recordingQueue,
	urgencyCtl alertSink,
	online onlineChecker,
	events ports.EventSink,
	logger *slog.Logger,
	clk clock.Clock,
	cfg Config,
) *CaptureController {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 15 * time.Second
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = 30
	}
	return &CaptureController{
		audio:   audioCapture,
		client:  client,
		feed:    feed,
		queue:   queue,
		urgency: urgencyCtl,
		online:  online,
		events:  events,
		logger:  logger,
		clock:   clk,
		cfg:     cfg,
	}
}

// Start begins a new capture session. Audio acquisition failure keeps the
// session Idle and is reported; backend unavailability does not — offline
// capture always succeeds locally.
func (c *CaptureController) Start(ctx context.Context, title string) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.events.SessionError(domain.ErrorCodeAudioStart, err.Error())
		return fmt.Errorf("acquire audio source: %w", err)
	}

	meetingID := ""
	offline := true
	if c.online == nil || c.online.IsOnline() {
		id, startErr := c.client.StartMeeting(sessionCtx, title)
		if startErr != nil {
			c.logger.Warn("backend meeting start failed, capturing offline", "error", startErr)
		} else {
			meetingID = id
			offline = false
		}
	}

	localID := meetingID
	if localID == "" {
		localID = "local-" + uuid.NewString()
	}

	if err := os.MkdirAll(c.cfg.MediaDir, 0o755); err != nil {
		_ = audioSession.Stop()
		cancel()
		c.events.SessionError(domain.ErrorCodeStorage, err.Error())
		return fmt.Errorf("create media dir: %w", err)
	}
	rawPath := filepath.Join(c.cfg.MediaDir, localID+".pcm")
	file, err := os.Create(rawPath)
	if err != nil {
		_ = audioSession.Stop()
		cancel()
		c.events.SessionError(domain.ErrorCodeStorage, err.Error())
		return fmt.Errorf("create capture file: %w", err)
	}

	active := &activeCapture{
		cancel:     cancel,
		meetingID:  meetingID,
		localID:    localID,
		title:      title,
		offline:    offline,
		startedAt:  c.clock.Now(),
		audio:      audioSession,
		rawPath:    rawPath,
		file:       file,
		ring:       audio.NewRing(c.cfg.Audio.SampleRate, c.cfg.Audio.Channels, c.cfg.RingSeconds),
		state:      domain.SessionStateRecording,
		audioDone:  make(chan struct{}),
		alertsDone: make(chan struct{}),
	}
	active.silence = silence.NewMonitor(c.cfg.SilenceThreshold, c.cfg.SilenceTimeout, c.clock, func() {
		go c.autoStop()
	})
	active.gestures = gesture.NewClassifier(c.cfg.Gesture, c.clock, c.handleGesture)

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		active.gestures.Close()
		_ = audioSession.Stop()
		_ = file.Close()
		_ = os.Remove(rawPath)
		cancel()
		return ErrSessionActive
	}
	c.current = active
	c.mu.Unlock()

	go pumpAudio(active.audio, active.file, active.ring, active.silence.Sample,
		c.cfg.ChunkSize, c.events, active.setWriteErr, active.audioDone)
	active.silence.Start()

	if !offline && c.feed != nil {
		stream, subErr := c.feed.Subscribe(sessionCtx, meetingID)
		if subErr != nil {
			c.events.SessionError(domain.ErrorCodeAlertFeed, subErr.Error())
			close(active.alertsDone)
		} else {
			active.alerts = stream
			go consumeAlerts(stream, c.urgency, active.alertsDone)
		}
	} else {
		close(active.alertsDone)
	}

	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// Stop ends the active session, finalizes the artifact, and hands it to the
// upload path.
func (c *CaptureController) Stop(ctx context.Context) (domain.StopResult, error) {
	return c.stopWith(ctx, stopCauseManual)
}

// Abort cancels and discards the active session without keeping the audio.
func (c *CaptureController) Abort() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	if !active.beginStop() {
		return ErrStopInProgress
	}

	c.teardown(active)
	_ = os.Remove(active.rawPath)
	c.urgency.Reset()
	c.finish(active, domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	return nil
}

// PointerDown forwards a raw pointer press to the gesture classifier.
func (c *CaptureController) PointerDown(x, y float64) {
	if active := c.peek(); active != nil {
		active.gestures.PointerDown(x, y)
	}
}

// PointerUp forwards a raw pointer release to the gesture classifier.
func (c *CaptureController) PointerUp(x, y float64) {
	if active := c.peek(); active != nil {
		active.gestures.PointerUp(x, y)
	}
}

// PointerMove forwards pointer movement to the gesture classifier.
func (c *CaptureController) PointerMove(x, y float64) {
	if active := c.peek(); active != nil {
		active.gestures.PointerMove(x, y)
	}
}

// Status returns the current runtime status.
func (c *CaptureController) Status() domain.Status {
	online := c.online == nil || c.online.IsOnline()

	c.mu.Lock()
	active := c.current
	c.mu.Unlock()

	if active == nil {
		return domain.Status{State: domain.SessionStateIdle, Active: false, Online: online}
	}
	state := active.getState()
	return domain.Status{
		State:          state,
		Active:         state != domain.SessionStateIdle,
		MeetingID:      active.meetingID,
		ElapsedSeconds: c.clock.Since(active.startedAt).Seconds(),
		Online:         online,
	}
}

func (c *CaptureController) autoStop() {
	if _, err := c.stopWith(context.Background(), stopCauseSilence); err != nil &&
		!errors.Is(err, ErrNoActiveSession) && !errors.Is(err, ErrStopInProgress) {
		c.logger.Warn("silence auto-stop failed", "error", err)
	}
}

func (c *CaptureController) handleGesture(g domain.GestureEvent) {
	active := c.peek()
	if active == nil {
		return
	}

	c.events.GestureDetected(g)

	switch g.Kind {
	case domain.GestureSingleTap:
		go c.addBookmark(active, domain.BookmarkPriorityNormal)
	case domain.GestureDoubleTap:
		go c.addBookmark(active, domain.BookmarkPriorityHigh)
	case domain.GestureLongPress:
		go c.toggleMemo(active)
	case domain.GestureTripleTap:
		go func() {
			if _, err := c.stopWith(context.Background(), stopCauseEmergency); err != nil &&
				!errors.Is(err, ErrNoActiveSession) && !errors.Is(err, ErrStopInProgress) {
				c.logger.Warn("emergency stop failed", "error", err)
			}
		}()
	}
}

func (c *CaptureController) addBookmark(active *activeCapture, priority domain.BookmarkPriority) {
	if active.offline {
		c.logger.Info("bookmark skipped while offline", "priority", priority)
		return
	}

	mark := domain.Bookmark{
		MeetingID: active.meetingID,
		Offset:    c.clock.Since(active.startedAt),
		Priority:  priority,
	}
	if err := c.client.AddBookmark(context.Background(), mark); err != nil {
		c.events.SessionError(domain.ErrorCodeBookmark, err.Error())
	}
}

func (c *CaptureController) toggleMemo(active *activeCapture) {
	active.memoMu.Lock()
	defer active.memoMu.Unlock()

	if active.memo == nil {
		c.startMemoLocked(active)
		return
	}
	memo := active.memo
	active.memo = nil
	c.finishMemo(active, memo)
}

func (c *CaptureController) startMemoLocked(active *activeCapture) {
	memoSession, err := c.audio.Start(context.Background(), c.cfg.Audio)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStart, "voice memo: "+err.Error())
		return
	}

	memoID := "memo-" + uuid.NewString()
	rawPath := filepath.Join(c.cfg.MediaDir, memoID+".pcm")
	file, err := os.Create(rawPath)
	if err != nil {
		_ = memoSession.Stop()
		c.events.SessionError(domain.ErrorCodeStorage, "voice memo: "+err.Error())
		return
	}

	memo := &memoCapture{
		audio:     memoSession,
		rawPath:   rawPath,
		file:      file,
		startedAt: c.clock.Now(),
		done:      make(chan struct{}),
	}
	go pumpAudio(memoSession, file, nil, nil, c.cfg.ChunkSize, c.events, memo.setWriteErr, memo.done)

	active.memo = memo
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonMemoStarted)
}

func (c *CaptureController) finishMemo(active *activeCapture, memo *memoCapture) {
	if err := memo.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "voice memo: "+err.Error())
	}
	<-memo.done
	_ = memo.file.Close()

	wavPath := strings.TrimSuffix(memo.rawPath, ".pcm") + ".wav"
	size, err := audio.FinalizeWAV(memo.rawPath, wavPath, c.cfg.Audio.SampleRate, c.cfg.Audio.Channels)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeFinalize, "voice memo: "+err.Error())
		return
	}

	item := domain.RecordingItem{
		ID:        uuid.NewString(),
		MeetingID: active.meetingID,
		CreatedAt: c.clock.Now().UTC(),
		MediaPath: wavPath,
		SizeBytes: size,
		Duration:  c.clock.Since(memo.startedAt),
		Kind:      domain.RecordingKindVoiceMemo,
		Title:     active.title,
	}
	if err := c.queue.Enqueue(context.Background(), item); err != nil {
		c.events.SessionError(domain.ErrorCodeStorage, "voice memo: "+err.Error())
		return
	}
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonMemoStopped)

	if c.online == nil || c.online.IsOnline() {
		go func() {
			if err := c.queue.Flush(context.Background()); err != nil {
				c.logger.Warn("memo flush failed", "error", err)
			}
		}()
	}
}

func (c *CaptureController) stopWith(ctx context.Context, cause stopCause) (domain.StopResult, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.StopResult{}, err
	}
	if !active.beginStop() {
		return domain.StopResult{}, ErrStopInProgress
	}

	active.setState(domain.SessionStateStopping)
	c.events.SessionStateChanged(domain.SessionStateStopping, cause.reason())

	c.teardown(active)
	c.urgency.Reset()

	result, finalizeErr := c.finalize(ctx, active)
	if finalizeErr != nil {
		c.finish(active, domain.SessionStateIdle, domain.SessionReasonAudioSafe)
		return domain.StopResult{}, finalizeErr
	}

	if !active.offline {
		if stopErr := c.client.StopMeeting(ctx, active.meetingID); stopErr != nil {
			c.logger.Warn("backend meeting stop failed", "meeting", active.meetingID, "error", stopErr)
		}
	}

	reason := domain.SessionReasonQueuedOffline
	if result.Uploaded {
		reason = domain.SessionReasonUploaded
	}
	c.finish(active, domain.SessionStateIdle, reason)
	return result, nil
}

// teardown halts input processing: gestures first so no further callbacks
// fire, then the silence monitor, the memo sub-capture, the audio source,
// and the alert stream.
func (c *CaptureController) teardown(active *activeCapture) {
	active.gestures.Close()
	active.silence.Stop()

	active.memoMu.Lock()
	memo := active.memo
	active.memo = nil
	active.memoMu.Unlock()
	if memo != nil {
		c.finishMemo(active, memo)
	}

	if err := active.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	<-active.audioDone
	_ = active.file.Close()

	if active.alerts != nil {
		_ = active.alerts.Close()
	}
	<-active.alertsDone
	active.cancel()
}

// finalize converts the raw capture into the final artifact and hands it to
// the upload path as one atomic step. Any failure preserves the captured
// audio on disk (raw file, or the recovery ring when the file is damaged).
func (c *CaptureController) finalize(ctx context.Context, active *activeCapture) (domain.StopResult, error) {
	duration := c.clock.Since(active.startedAt)

	if writeErr := active.getWriteErr(); writeErr != nil {
		c.preserveRing(active)
		c.events.SessionError(domain.ErrorCodeFinalize, "processing issue, audio is safe")
		return domain.StopResult{}, fmt.Errorf("capture file damaged: %w", writeErr)
	}

	wavPath := strings.TrimSuffix(active.rawPath, ".pcm") + ".wav"
	size, err := audio.FinalizeWAV(active.rawPath, wavPath, c.cfg.Audio.SampleRate, c.cfg.Audio.Channels)
	if err != nil {
		c.preserveRing(active)
		c.events.SessionError(domain.ErrorCodeFinalize, "processing issue, audio is safe")
		return domain.StopResult{}, fmt.Errorf("finalize artifact: %w", err)
	}

	item := domain.RecordingItem{
		ID:        uuid.NewString(),
		MeetingID: active.meetingID,
		CreatedAt: c.clock.Now().UTC(),
		MediaPath: wavPath,
		SizeBytes: size,
		Duration:  duration,
		Kind:      domain.RecordingKindMeetingAudio,
		Title:     active.title,
	}
	if err := c.queue.Enqueue(ctx, item); err != nil {
		// The finished artifact stays on disk even when the queue store is down.
		c.events.SessionError(domain.ErrorCodeStorage, "processing issue, audio is safe")
		return domain.StopResult{}, fmt.Errorf("enqueue artifact: %w", err)
	}

	result := domain.StopResult{
		MeetingID: active.meetingID,
		ItemID:    item.ID,
		MediaPath: wavPath,
		Duration:  duration,
	}

	if c.online == nil || c.online.IsOnline() {
		if err := c.queue.Flush(ctx); err != nil {
			c.logger.Warn("post-stop flush failed", "error", err)
		} else if stored, itemErr := c.queue.Item(ctx, item.ID); itemErr == nil {
			result.Uploaded = stored.Status == domain.UploadStatusDone
		}
	}
	return result, nil
}

// preserveRing dumps the rolling recent-audio buffer next to the damaged
// capture so the tail of the recording survives.
func (c *CaptureController) preserveRing(active *activeCapture) {
	tail := active.ring.Bytes()
	if len(tail) == 0 {
		return
	}
	recoveryPath := strings.TrimSuffix(active.rawPath, ".pcm") + ".recovery.pcm"
	if err := os.WriteFile(recoveryPath, tail, 0o644); err != nil {
		c.logger.Error("failed to write recovery audio", "path", recoveryPath, "error", err)
	}
}

func (c *CaptureController) getCurrent() (*activeCapture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}

// peek returns the active session only while it is recording.
func (c *CaptureController) peek() *activeCapture {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.getState() != domain.SessionStateRecording {
		return nil
	}
	return c.current
}

func (c *CaptureController) finish(active *activeCapture, state domain.SessionState, reason domain.SessionStateReason) {
	active.setState(state)

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()

	c.events.SessionStateChanged(state, reason)
}
