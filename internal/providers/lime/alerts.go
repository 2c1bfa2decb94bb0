package lime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"limecap/internal/domain"
	"limecap/internal/ports"
)

// Feed subscribes to the per-meeting intelligence alert stream.
type Feed struct {
	cfg Config
}

func NewFeed(cfg Config) *Feed {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8000/api"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Feed{cfg: cfg}
}

func (f *Feed) Subscribe(ctx context.Context, meetingID string) (ports.AlertStream, error) {
	wsURL, err := buildAlertURL(f.cfg.BaseURL, meetingID)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if f.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to alert feed: %w", err)
	}

	stream := &alertStream{
		conn:   conn,
		alerts: make(chan domain.CaptureAlert, 64),
		done:   make(chan struct{}),
	}

	go stream.readLoop()
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	return stream, nil
}

type alertStream struct {
	conn *websocket.Conn

	alerts chan domain.CaptureAlert
	done   chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *alertStream) Alerts() <-chan domain.CaptureAlert {
	return s.alerts
}

func (s *alertStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
	<-s.done

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *alertStream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *alertStream) readLoop() {
	defer func() {
		close(s.alerts)
		close(s.done)
		_ = s.conn.Close()
	}()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read alert feed: %w", err))
			return
		}

		var message alertMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}
		if strings.EqualFold(message.Type, "ping") {
			continue
		}

		alert, ok := message.toAlert()
		if !ok {
			continue
		}
		s.emit(alert)
	}
}

func (s *alertStream) emit(alert domain.CaptureAlert) {
	select {
	case s.alerts <- alert:
	default:
	}
}

type alertMessage struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Urgency    json.RawMessage `json:"urgency"`
	Title      string          `json:"title"`
	Detail     string          `json:"detail"`
	Confidence float64         `json:"confidence"`
}

func (m alertMessage) toAlert() (domain.CaptureAlert, bool) {
	if m.ID == "" {
		return domain.CaptureAlert{}, false
	}

	message := strings.TrimSpace(m.Title)
	if detail := strings.TrimSpace(m.Detail); detail != "" {
		if message == "" {
			message = detail
		} else {
			message = message + ": " + detail
		}
	}

	return domain.CaptureAlert{
		ID:         m.ID,
		Timestamp:  time.Now().UTC(),
		Category:   normalizeCategory(m.Category),
		Message:    message,
		Urgency:    ParseUrgency(m.Urgency),
		Confidence: m.Confidence,
	}, true
}

// ParseUrgency accepts the feed's two urgency encodings, a number 0..3 or
// one of low/medium/high/critical, clamping anything out of range.
func ParseUrgency(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var numeric int
	if err := json.Unmarshal(raw, &numeric); err == nil {
		return domain.ClampUrgency(numeric)
	}

	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return 0
	case "medium":
		return 1
	case "high":
		return 2
	case "critical":
		return 3
	default:
		return 0
	}
}

func normalizeCategory(raw string) domain.AlertCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "contradiction":
		return domain.AlertCategoryContradiction
	case "connection":
		return domain.AlertCategoryConnection
	case "action-item", "action_item":
		return domain.AlertCategoryActionItem
	default:
		return domain.AlertCategoryInsight
	}
}

func buildAlertURL(base string, meetingID string) (string, error) {
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	feedURL, err := url.Parse(base + "/ws/alerts/" + meetingID)
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}
	return feedURL.String(), nil
}
