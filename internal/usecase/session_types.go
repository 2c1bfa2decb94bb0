package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"limecap/internal/audio"
	"limecap/internal/domain"
	"limecap/internal/gesture"
	"limecap/internal/ports"
	"limecap/internal/silence"
)

type activeCapture struct {
	cancel    context.CancelFunc
	meetingID string
	localID   string
	title     string
	offline   bool
	startedAt time.Time

	audio    ports.AudioSession
	rawPath  string
	file     io.WriteCloser
	ring     *audio.Ring
	silence  *silence.Monitor
	gestures *gesture.Classifier
	alerts   ports.AlertStream

	audioDone  chan struct{}
	alertsDone chan struct{}

	stateMu  sync.Mutex
	state    domain.SessionState
	stopping bool
	writeErr error

	memoMu sync.Mutex
	memo   *memoCapture
}

func (s *activeCapture) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeCapture) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// beginStop claims the one allowed stop; concurrent triggers (user tap,
// silence timeout, emergency gesture) lose the race and back off.
func (s *activeCapture) beginStop() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopping {
		return false
	}
	s.stopping = true
	return true
}

func (s *activeCapture) setWriteErr(err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

func (s *activeCapture) getWriteErr() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.writeErr
}

type memoCapture struct {
	audio     ports.AudioSession
	rawPath   string
	file      io.WriteCloser
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	writeErr error
}

func (m *memoCapture) setWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr == nil {
		m.writeErr = err
	}
}

type stopCause int

const (
	stopCauseManual stopCause = iota
	stopCauseSilence
	stopCauseEmergency
)

func (c stopCause) reason() domain.SessionStateReason {
	switch c {
	case stopCauseSilence:
		return domain.SessionReasonSilenceTimeout
	case stopCauseEmergency:
		return domain.SessionReasonEmergencyStop
	default:
		return domain.SessionReasonFinalizing
	}
}
