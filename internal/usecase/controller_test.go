package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"limecap/internal/domain"
	"limecap/internal/gesture"
	"limecap/internal/ports"
)

type fakeAudioSession struct {
	data chan []byte
	once sync.Once
}

func newFakeAudioSession() *fakeAudioSession {
	return &fakeAudioSession{data: make(chan []byte, 64)}
}

func (s *fakeAudioSession) push(chunk []byte) {
	s.data <- chunk
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	chunk, ok := <-s.data
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (s *fakeAudioSession) Stop() error {
	s.once.Do(func() { close(s.data) })
	return nil
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

type fakeAudioCapture struct {
	mu       sync.Mutex
	startErr error
	sessions []*fakeAudioSession
}

func (c *fakeAudioCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	session := newFakeAudioSession()
	c.sessions = append(c.sessions, session)
	return session, nil
}

func (c *fakeAudioCapture) session(i int) *fakeAudioSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		return nil
	}
	return c.sessions[i]
}

type fakeMeetingClient struct {
	mu        sync.Mutex
	startErr  error
	meetingID string
	bookmarks []domain.Bookmark
	stopped   []string
}

func (c *fakeMeetingClient) StartMeeting(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return "", c.startErr
	}
	if c.meetingID == "" {
		c.meetingID = "m-1"
	}
	return c.meetingID, nil
}

func (c *fakeMeetingClient) StopMeeting(_ context.Context, meetingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, meetingID)
	return nil
}

func (c *fakeMeetingClient) AddBookmark(_ context.Context, mark domain.Bookmark) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookmarks = append(c.bookmarks, mark)
	return nil
}

func (c *fakeMeetingClient) bookmarkPriorities() []domain.BookmarkPriority {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.BookmarkPriority, 0, len(c.bookmarks))
	for _, mark := range c.bookmarks {
		out = append(out, mark.Priority)
	}
	return out
}

func (c *fakeMeetingClient) stoppedMeetings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.stopped))
	copy(out, c.stopped)
	return out
}

type fakeAlertStream struct {
	alerts chan domain.CaptureAlert
	once   sync.Once
}

func (s *fakeAlertStream) Alerts() <-chan domain.CaptureAlert { return s.alerts }

func (s *fakeAlertStream) Close() error {
	s.once.Do(func() { close(s.alerts) })
	return nil
}

type fakeAlertFeed struct {
	mu      sync.Mutex
	err     error
	streams []*fakeAlertStream
}

func (f *fakeAlertFeed) Subscribe(context.Context, string) (ports.AlertStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stream := &fakeAlertStream{alerts: make(chan domain.CaptureAlert, 8)}
	f.streams = append(f.streams, stream)
	return stream, nil
}

type fakeRecordingQueue struct {
	mu         sync.Mutex
	enqueueErr error
	flushErr   error
	uploadable bool
	items      map[string]domain.RecordingItem
	flushes    int
}

func (q *fakeRecordingQueue) Enqueue(_ context.Context, item domain.RecordingItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	item.Status = domain.UploadStatusQueued
	if q.items == nil {
		q.items = map[string]domain.RecordingItem{}
	}
	q.items[item.ID] = item
	return nil
}

func (q *fakeRecordingQueue) Flush(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushes++
	if q.flushErr != nil {
		return q.flushErr
	}
	if q.uploadable {
		for id, item := range q.items {
			item.Status = domain.UploadStatusDone
			q.items[id] = item
		}
	}
	return nil
}

func (q *fakeRecordingQueue) Item(_ context.Context, id string) (domain.RecordingItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return domain.RecordingItem{}, errors.New("not found")
	}
	return item, nil
}

func (q *fakeRecordingQueue) itemList() []domain.RecordingItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.RecordingItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, item)
	}
	return out
}

type fakeUrgency struct {
	mu     sync.Mutex
	alerts []domain.CaptureAlert
	resets int
}

func (u *fakeUrgency) OnAlert(alert domain.CaptureAlert) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.alerts = append(u.alerts, alert)
}

func (u *fakeUrgency) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resets = u.resets + 1
}

func (u *fakeUrgency) alertCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.alerts)
}

type fakeOnline struct {
	mu     sync.Mutex
	online bool
}

func (o *fakeOnline) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

type stateChange struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type captureSink struct {
	mu       sync.Mutex
	states   []stateChange
	errors   []domain.ErrorCode
	gestures []domain.GestureKind
}

func (s *captureSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, stateChange{state: state, reason: reason})
}

func (s *captureSink) GestureDetected(g domain.GestureEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gestures = append(s.gestures, g.Kind)
}

func (s *captureSink) AlertReceived(domain.CaptureAlert)     {}
func (s *captureSink) UrgencyChanged(int)                    {}
func (s *captureSink) QueueItemChanged(domain.RecordingItem) {}
func (s *captureSink) ConnectivityChanged(bool)              {}
func (s *captureSink) SyncCompleted(domain.SyncCursor)       {}

func (s *captureSink) SessionError(code domain.ErrorCode, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, code)
}

func (s *captureSink) stateChanges() []stateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stateChange, len(s.states))
	copy(out, s.states)
	return out
}

func (s *captureSink) errorCodes() []domain.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ErrorCode, len(s.errors))
	copy(out, s.errors)
	return out
}

func (s *captureSink) hasReason(reason domain.SessionStateReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, change := range s.states {
		if change.reason == reason {
			return true
		}
	}
	return false
}

type controllerFixture struct {
	controller *CaptureController
	audio      *fakeAudioCapture
	client     *fakeMeetingClient
	feed       *fakeAlertFeed
	queue      *fakeRecordingQueue
	urgency    *fakeUrgency
	online     *fakeOnline
	sink       *captureSink
	clock      *clock.Mock
	mediaDir   string
}

func newFixture(t *testing.T) *controllerFixture {
	t.Helper()

	f := &controllerFixture{
		audio:    &fakeAudioCapture{},
		client:   &fakeMeetingClient{},
		feed:     &fakeAlertFeed{},
		queue:    &fakeRecordingQueue{uploadable: true},
		urgency:  &fakeUrgency{},
		online:   &fakeOnline{online: true},
		sink:     &captureSink{},
		clock:    clock.NewMock(),
		mediaDir: t.TempDir(),
	}
	f.controller = NewCaptureController(
		f.audio, f.client, f.feed, f.queue, f.urgency, f.online, f.sink, nil, f.clock,
		Config{
			Audio:            ports.AudioConfig{SampleRate: 16000, Channels: 1},
			Gesture:          gesture.Config{},
			SilenceThreshold: 0.015,
			SilenceTimeout:   15 * time.Second,
			RingSeconds:      1,
			MediaDir:         f.mediaDir,
		},
	)
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStartStopOnline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := f.controller.Status()
	if status.State != domain.SessionStateRecording || !status.Active || status.MeetingID != "m-1" {
		t.Fatalf("unexpected status: %+v", status)
	}

	f.audio.session(0).push([]byte{1, 0, 2, 0})
	f.clock.Add(time.Second)

	result, err := f.controller.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if result.MeetingID != "m-1" || !result.Uploaded {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Duration != time.Second {
		t.Fatalf("unexpected duration: %v", result.Duration)
	}

	wav, err := os.ReadFile(result.MediaPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(wav) != 44+4 {
		t.Fatalf("unexpected artifact size: %d", len(wav))
	}

	items := f.queue.itemList()
	if len(items) != 1 || items[0].Kind != domain.RecordingKindMeetingAudio || items[0].MeetingID != "m-1" {
		t.Fatalf("unexpected queue items: %+v", items)
	}
	if got := f.client.stoppedMeetings(); len(got) != 1 || got[0] != "m-1" {
		t.Fatalf("backend stop not called: %v", got)
	}

	changes := f.sink.stateChanges()
	if len(changes) != 3 {
		t.Fatalf("unexpected state changes: %+v", changes)
	}
	want := []stateChange{
		{domain.SessionStateRecording, domain.SessionReasonRecordingStarted},
		{domain.SessionStateStopping, domain.SessionReasonFinalizing},
		{domain.SessionStateIdle, domain.SessionReasonUploaded},
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("unexpected state changes: %+v", changes)
		}
	}

	if got := f.controller.Status(); got.Active || got.State != domain.SessionStateIdle {
		t.Fatalf("controller not idle after stop: %+v", got)
	}
	if f.urgency.resets != 1 {
		t.Fatalf("urgency not reset on stop")
	}
}

func TestOfflineCaptureQueuesLocally(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.online.online = false
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.audio.session(0).push([]byte{1, 0})

	result, err := f.controller.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if result.Uploaded || result.MeetingID != "" {
		t.Fatalf("offline stop should queue, got %+v", result)
	}
	if !strings.Contains(result.MediaPath, "local-") {
		t.Fatalf("expected local artifact name, got %q", result.MediaPath)
	}

	items := f.queue.itemList()
	if len(items) != 1 || items[0].Status != domain.UploadStatusQueued || items[0].MeetingID != "" {
		t.Fatalf("unexpected queue items: %+v", items)
	}
	if f.queue.flushes != 0 {
		t.Fatalf("offline stop flushed the queue")
	}
	if !f.sink.hasReason(domain.SessionReasonQueuedOffline) {
		t.Fatalf("missing queued-offline reason: %+v", f.sink.stateChanges())
	}
	if len(f.client.stoppedMeetings()) != 0 {
		t.Fatalf("backend stop called while offline")
	}
}

func TestBackendStartFailureFallsBackToOffline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.client.startErr = errors.New("backend down")
	ctx := context.Background()

	if err := f.controller.Start(ctx, "notes"); err != nil {
		t.Fatalf("start should succeed locally: %v", err)
	}
	status := f.controller.Status()
	if status.State != domain.SessionStateRecording || status.MeetingID != "" {
		t.Fatalf("unexpected status: %+v", status)
	}

	f.audio.session(0).push([]byte{1, 0})
	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestAudioStartFailureStaysIdle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.audio.startErr = errors.New("device busy")

	if err := f.controller.Start(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
	if got := f.controller.Status(); got.State != domain.SessionStateIdle || got.Active {
		t.Fatalf("unexpected status: %+v", got)
	}
	codes := f.sink.errorCodes()
	if len(codes) != 1 || codes[0] != domain.ErrorCodeAudioStart {
		t.Fatalf("unexpected error codes: %v", codes)
	}
	if len(f.sink.stateChanges()) != 0 {
		t.Fatalf("state changed despite failed start: %+v", f.sink.stateChanges())
	}
}

func TestSecondStartRefused(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.controller.Start(ctx, ""); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStopWithoutSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.controller.Stop(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if err := f.controller.Abort(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSilenceAutoStops(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.audio.session(0).push([]byte{1, 0})

	f.clock.Add(15 * time.Second)
	waitFor(t, "silence auto-stop", func() bool {
		return f.controller.Status().State == domain.SessionStateIdle
	})

	if !f.sink.hasReason(domain.SessionReasonSilenceTimeout) {
		t.Fatalf("missing silence-timeout reason: %+v", f.sink.stateChanges())
	}
	if items := f.queue.itemList(); len(items) != 1 {
		t.Fatalf("silence stop did not enqueue the artifact: %+v", items)
	}
}

func TestTapsAddBookmarks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.controller.PointerDown(10, 10)
	f.controller.PointerUp(10, 10)
	f.clock.Add(300 * time.Millisecond)
	waitFor(t, "single-tap bookmark", func() bool {
		return len(f.client.bookmarkPriorities()) == 1
	})

	f.controller.PointerDown(10, 10)
	f.controller.PointerUp(10, 10)
	f.clock.Add(100 * time.Millisecond)
	f.controller.PointerDown(10, 10)
	f.controller.PointerUp(10, 10)
	f.clock.Add(300 * time.Millisecond)
	waitFor(t, "double-tap bookmark", func() bool {
		return len(f.client.bookmarkPriorities()) == 2
	})

	got := f.client.bookmarkPriorities()
	if got[0] != domain.BookmarkPriorityNormal || got[1] != domain.BookmarkPriorityHigh {
		t.Fatalf("unexpected bookmark priorities: %v", got)
	}

	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestBookmarksSkippedOffline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.online.online = false
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.controller.PointerDown(10, 10)
	f.controller.PointerUp(10, 10)
	f.clock.Add(300 * time.Millisecond)
	waitFor(t, "gesture event", func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.gestures) == 1
	})

	if got := f.client.bookmarkPriorities(); len(got) != 0 {
		t.Fatalf("bookmark sent while offline: %v", got)
	}

	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestTripleTapEmergencyStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.audio.session(0).push([]byte{1, 0})

	for i := 0; i < 3; i++ {
		f.controller.PointerDown(10, 10)
		f.controller.PointerUp(10, 10)
		f.clock.Add(50 * time.Millisecond)
	}

	waitFor(t, "emergency stop", func() bool {
		return f.controller.Status().State == domain.SessionStateIdle
	})

	if !f.sink.hasReason(domain.SessionReasonEmergencyStop) {
		t.Fatalf("missing emergency-stop reason: %+v", f.sink.stateChanges())
	}
	if items := f.queue.itemList(); len(items) != 1 {
		t.Fatalf("emergency stop did not preserve the artifact: %+v", items)
	}
}

func TestLongPressTogglesVoiceMemo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, "standup"); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.controller.PointerDown(10, 10)
	f.clock.Add(600 * time.Millisecond)
	f.controller.PointerUp(10, 10)
	waitFor(t, "memo start", func() bool {
		return f.sink.hasReason(domain.SessionReasonMemoStarted)
	})

	waitFor(t, "memo audio session", func() bool { return f.audio.session(1) != nil })
	f.audio.session(1).push([]byte{3, 0, 4, 0})
	f.clock.Add(2 * time.Second)

	f.controller.PointerDown(10, 10)
	f.clock.Add(600 * time.Millisecond)
	f.controller.PointerUp(10, 10)
	waitFor(t, "memo stop", func() bool {
		return f.sink.hasReason(domain.SessionReasonMemoStopped)
	})

	// The memo is its own queue item; the main capture keeps recording.
	if got := f.controller.Status(); got.State != domain.SessionStateRecording {
		t.Fatalf("memo ended the session: %+v", got)
	}
	items := f.queue.itemList()
	if len(items) != 1 || items[0].Kind != domain.RecordingKindVoiceMemo {
		t.Fatalf("unexpected queue items: %+v", items)
	}
	if items[0].Duration != 2*time.Second+600*time.Millisecond {
		t.Fatalf("unexpected memo duration: %v", items[0].Duration)
	}

	f.audio.session(0).push([]byte{1, 0})
	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if items := f.queue.itemList(); len(items) != 2 {
		t.Fatalf("expected memo and meeting artifacts, got %+v", items)
	}
}

func TestStopFinishesOpenMemo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.controller.PointerDown(10, 10)
	f.clock.Add(600 * time.Millisecond)
	f.controller.PointerUp(10, 10)
	waitFor(t, "memo start", func() bool {
		return f.sink.hasReason(domain.SessionReasonMemoStarted)
	})
	waitFor(t, "memo audio session", func() bool { return f.audio.session(1) != nil })
	f.audio.session(1).push([]byte{3, 0})
	f.audio.session(0).push([]byte{1, 0})

	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	kinds := map[domain.RecordingKind]bool{}
	for _, item := range f.queue.itemList() {
		kinds[item.Kind] = true
	}
	if !kinds[domain.RecordingKindVoiceMemo] || !kinds[domain.RecordingKindMeetingAudio] {
		t.Fatalf("open memo not finalized on stop: %+v", f.queue.itemList())
	}
}

func TestFinalizeFailurePreservesAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := f.audio.session(0)
	session.push([]byte{1, 0, 2, 0})

	// Wait for the pump to drain, then damage the raw capture file.
	var rawPath string
	waitFor(t, "raw capture on disk", func() bool {
		entries, err := os.ReadDir(f.mediaDir)
		if err != nil || len(entries) == 0 {
			return false
		}
		info, err := entries[0].Info()
		if err != nil || info.Size() == 0 {
			return false
		}
		rawPath = filepath.Join(f.mediaDir, entries[0].Name())
		return true
	})
	if err := os.Remove(rawPath); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	if _, err := f.controller.Stop(ctx); err == nil {
		t.Fatalf("expected finalize error")
	}

	// The recent-audio ring is preserved next to the damaged capture.
	recovery := strings.TrimSuffix(rawPath, ".pcm") + ".recovery.pcm"
	tail, err := os.ReadFile(recovery)
	if err != nil {
		t.Fatalf("recovery audio missing: %v", err)
	}
	if len(tail) != 4 {
		t.Fatalf("unexpected recovery audio: %d bytes", len(tail))
	}

	if !f.sink.hasReason(domain.SessionReasonAudioSafe) {
		t.Fatalf("missing audio-safe reason: %+v", f.sink.stateChanges())
	}
	if got := f.controller.Status(); got.State != domain.SessionStateIdle {
		t.Fatalf("controller stuck after failed stop: %+v", got)
	}

	// A new session can start after the failure.
	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	f.audio.session(1).push([]byte{1, 0})
	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop after restart: %v", err)
	}
}

func TestEnqueueFailureKeepsArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.queue.enqueueErr = errors.New("store down")
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.audio.session(0).push([]byte{1, 0})

	if _, err := f.controller.Stop(ctx); err == nil {
		t.Fatalf("expected enqueue error")
	}

	// The finished artifact stays on disk for manual recovery.
	entries, err := os.ReadDir(f.mediaDir)
	if err != nil {
		t.Fatalf("read media dir: %v", err)
	}
	found := false
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".wav") {
			found = true
		}
	}
	if !found {
		t.Fatalf("artifact missing after enqueue failure: %v", entries)
	}
}

func TestAbortDiscardsAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.audio.session(0).push([]byte{1, 0})

	if err := f.controller.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !f.sink.hasReason(domain.SessionReasonRecordingDiscarded) {
		t.Fatalf("missing discarded reason: %+v", f.sink.stateChanges())
	}
	if items := f.queue.itemList(); len(items) != 0 {
		t.Fatalf("abort enqueued an artifact: %+v", items)
	}
	entries, err := os.ReadDir(f.mediaDir)
	if err != nil {
		t.Fatalf("read media dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("abort left files behind: %v", entries)
	}
}

func TestAlertsFeedUrgency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.feed.mu.Lock()
	stream := f.feed.streams[0]
	f.feed.mu.Unlock()
	stream.alerts <- domain.CaptureAlert{ID: "a-1", Urgency: 2}

	waitFor(t, "alert delivery", func() bool { return f.urgency.alertCount() == 1 })

	f.audio.session(0).push([]byte{1, 0})
	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if f.urgency.resets != 1 {
		t.Fatalf("urgency not reset on stop")
	}
}

func TestAlertFeedFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.feed.err = errors.New("ws refused")
	ctx := context.Background()

	if err := f.controller.Start(ctx, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	codes := f.sink.errorCodes()
	if len(codes) != 1 || codes[0] != domain.ErrorCodeAlertFeed {
		t.Fatalf("unexpected error codes: %v", codes)
	}

	f.audio.session(0).push([]byte{1, 0})
	if _, err := f.controller.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
