package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"limecap/internal/bootstrap"
	"limecap/internal/config"
	"limecap/internal/domain"
	"limecap/internal/usecase"
)

const (
	eventSession      = "limecap:session"
	eventGesture      = "limecap:gesture"
	eventAlert        = "limecap:alert"
	eventUrgency      = "limecap:urgency"
	eventQueue        = "limecap:queue"
	eventConnectivity = "limecap:connectivity"
	eventSync         = "limecap:sync"
	eventError        = "limecap:error"
	eventHaptic       = "limecap:haptic"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	cfg      config.Config
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.services = services

	services.Connectivity.Start(ctx)
	services.Sync.Start(ctx)
	go func() {
		// Startup reconciliation also drains anything queued before restart.
		if err := services.Sync.Sync(ctx); err != nil {
			services.Logger.Warn("startup sync failed", "error", err)
		}
	}()

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonCaptureCold)
}

func (a *App) shutdown(_ context.Context) {
	if a.bootErr != nil {
		return
	}
	if a.services.Capture != nil {
		if _, err := a.services.Capture.Stop(context.Background()); err != nil &&
			!errors.Is(err, usecase.ErrNoActiveSession) {
			a.services.Logger.Warn("shutdown stop failed", "error", err)
		}
	}
	a.services.Sync.Stop()
	a.services.Connectivity.Stop()
	_ = a.services.Store.Close()
}

// StartCapture begins a new recording session.
func (a *App) StartCapture(title string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Capture.Start(a.ctx, title); err != nil {
		return domain.Status{}, err
	}
	return a.services.Capture.Status(), nil
}

// StopCapture ends the active recording and hands it to the upload path.
func (a *App) StopCapture() (domain.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.StopResult{}, err
	}
	return a.services.Capture.Stop(a.ctx)
}

// AbortCapture discards an in-progress recording.
func (a *App) AbortCapture() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Capture.Abort(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// PointerDown forwards a raw pointer press from the frontend.
func (a *App) PointerDown(x, y float64) {
	if a.requireReady() == nil {
		a.services.Capture.PointerDown(x, y)
	}
}

// PointerUp forwards a raw pointer release from the frontend.
func (a *App) PointerUp(x, y float64) {
	if a.requireReady() == nil {
		a.services.Capture.PointerUp(x, y)
	}
}

// PointerMove forwards pointer movement from the frontend.
func (a *App) PointerMove(x, y float64) {
	if a.requireReady() == nil {
		a.services.Capture.PointerMove(x, y)
	}
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.bootErr != nil {
		return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
	}
	if a.services.Capture == nil {
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.services.Capture.Status()
}

// GetAlerts returns undismissed alerts, most recent first.
func (a *App) GetAlerts() []domain.CaptureAlert {
	if a.requireReady() != nil {
		return nil
	}
	return a.services.Urgency.Alerts()
}

// GetUrgency returns the current urgency level.
func (a *App) GetUrgency() int {
	if a.requireReady() != nil {
		return 0
	}
	return a.services.Urgency.Level()
}

// DismissAlert removes one alert; urgency may drop.
func (a *App) DismissAlert(id string) bool {
	if a.requireReady() != nil {
		return false
	}
	return a.services.Urgency.Dismiss(id)
}

// ListRecordings returns the offline queue contents.
func (a *App) ListRecordings() ([]domain.RecordingItem, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Queue.List(a.ctx)
}

// ClearDoneRecordings removes delivered queue items.
func (a *App) ClearDoneRecordings() (int, error) {
	if err := a.requireReady(); err != nil {
		return 0, err
	}
	return a.services.Queue.ClearDone(a.ctx)
}

// FlushQueue retries delivery of all pending recordings.
func (a *App) FlushQueue() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Queue.Flush(a.ctx)
}

// SyncNow runs one sync round (user-triggered or on app foreground).
func (a *App) SyncNow() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Sync.Sync(a.ctx)
}

// GetMeetings returns the locally cached authoritative meeting list.
func (a *App) GetMeetings() ([]domain.MeetingSummary, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Store.Meetings(a.ctx)
}

// GetSyncCursor returns when the last successful sync round completed.
func (a *App) GetSyncCursor() (domain.SyncCursor, error) {
	if err := a.requireReady(); err != nil {
		return domain.SyncCursor{}, err
	}
	return a.services.Store.Cursor(a.ctx)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"backend":          a.cfg.Backend.BaseURL,
		"dataDir":          a.cfg.DataDir,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"silenceTimeout":   a.cfg.Silence.Timeout.String(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Capture == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// GestureDetected emits a classified gesture to the frontend.
func (a *App) GestureDetected(gesture domain.GestureEvent) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventGesture, gesture)
}

// AlertReceived emits one intelligence alert.
func (a *App) AlertReceived(alert domain.CaptureAlert) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAlert, alert)
}

// UrgencyChanged emits the single urgency signal the UI renders.
func (a *App) UrgencyChanged(level int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventUrgency, map[string]int{"level": level})
}

// QueueItemChanged emits per-item upload status transitions.
func (a *App) QueueItemChanged(item domain.RecordingItem) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventQueue, item)
}

// ConnectivityChanged emits online/offline transitions.
func (a *App) ConnectivityChanged(online bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConnectivity, map[string]bool{"online": online})
}

// SyncCompleted emits the advanced sync cursor.
func (a *App) SyncCompleted(cursor domain.SyncCursor) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSync, cursor)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// Vibrate asks the frontend to play a haptic pattern.
func (a *App) Vibrate(pattern []int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventHaptic, map[string]any{"pattern": pattern})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonCaptureCold:
		return "Ready to capture"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonSilenceTimeout:
		return "Prolonged silence detected. Stopping..."
	case domain.SessionReasonEmergencyStop:
		return "Emergency stop"
	case domain.SessionReasonFinalizing:
		return "Recording stopped. Finalizing..."
	case domain.SessionReasonUploaded:
		return "Recording uploaded"
	case domain.SessionReasonQueuedOffline:
		return "Offline — will sync when connected"
	case domain.SessionReasonAudioSafe:
		return "Processing issue, audio is safe"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonMemoStarted:
		return "Voice memo started"
	case domain.SessionReasonMemoStopped:
		return "Voice memo saved"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStart:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeFinalize:
		return "Processing issue, audio is safe"
	case domain.ErrorCodeBookmark:
		return "Bookmark not saved"
	case domain.ErrorCodeUpload:
		return "Upload failed, will retry"
	case domain.ErrorCodeStorage:
		return "Local storage issue"
	case domain.ErrorCodeAlertFeed:
		return "Live alerts unavailable"
	case domain.ErrorCodeSync:
		return "Sync failed, will retry"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
