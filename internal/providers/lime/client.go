package lime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"limecap/internal/domain"
)

// Config controls access to the meeting-intelligence backend.
type Config struct {
	BaseURL        string
	APIKey         string
	ControlTimeout time.Duration
}

// Client speaks the backend REST API: meeting lifecycle, bookmarks, media
// upload, the authoritative meeting list, and the sync trigger. Upload
// deadlines are the caller's responsibility (the queue bounds each attempt);
// control calls carry their own short timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8000/api"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{}}
}

// StartMeeting registers a new meeting and returns its backend id.
func (c *Client) StartMeeting(ctx context.Context, title string) (string, error) {
	body := map[string]any{"source": "microphone"}
	if title != "" {
		body["title"] = title
	}

	var response struct {
		MeetingID string `json:"meeting_id"`
	}
	if err := c.postJSON(ctx, "/meetings/start", body, &response); err != nil {
		return "", fmt.Errorf("start meeting: %w", err)
	}
	if response.MeetingID == "" {
		return "", errors.New("start meeting: backend returned no meeting_id")
	}
	return response.MeetingID, nil
}

// StopMeeting marks a meeting finished on the backend.
func (c *Client) StopMeeting(ctx context.Context, meetingID string) error {
	if err := c.postJSON(ctx, "/meetings/"+meetingID+"/stop", nil, nil); err != nil {
		return fmt.Errorf("stop meeting: %w", err)
	}
	return nil
}

// AddBookmark records a timestamped marker inside an active meeting.
func (c *Client) AddBookmark(ctx context.Context, mark domain.Bookmark) error {
	body := map[string]any{
		"timestamp": mark.Offset.Seconds(),
		"priority":  string(mark.Priority),
	}
	if err := c.postJSON(ctx, "/meetings/"+mark.MeetingID+"/bookmarks", body, nil); err != nil {
		return fmt.Errorf("add bookmark: %w", err)
	}
	return nil
}

// UploadRecording streams a finished media artifact as a multipart body.
func (c *Client) UploadRecording(ctx context.Context, item domain.RecordingItem, media io.Reader) error {
	path := "/voice-memo"
	if item.Kind == domain.RecordingKindMeetingAudio {
		path = "/meetings/" + item.MeetingID + "/audio"
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("audio", filepath.Base(item.MediaPath))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, media); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if err := writer.WriteField("duration", strconv.FormatFloat(item.Duration.Seconds(), 'f', 3, 64)); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if item.Title != "" {
			if err := writer.WriteField("title", item.Title); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		_ = pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, pr)
	if err != nil {
		return fmt.Errorf("upload recording: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload recording: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload recording: %s", readAPIError(resp))
	}
	return nil
}

// ListMeetings fetches the authoritative meeting list.
func (c *Client) ListMeetings(ctx context.Context) ([]domain.MeetingSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/meetings", nil)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list meetings: %s", readAPIError(resp))
	}

	var raw []struct {
		ID              string  `json:"id"`
		Title           string  `json:"title"`
		Status          string  `json:"status"`
		StartedAt       string  `json:"started_at"`
		EndedAt         string  `json:"ended_at"`
		DurationSeconds float64 `json:"duration_seconds"`
		SegmentCount    int     `json:"segment_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("list meetings: decode response: %w", err)
	}

	meetings := make([]domain.MeetingSummary, 0, len(raw))
	for _, m := range raw {
		summary := domain.MeetingSummary{
			ID:              m.ID,
			Title:           m.Title,
			Status:          m.Status,
			DurationSeconds: m.DurationSeconds,
			SegmentCount:    m.SegmentCount,
		}
		if summary.StartedAt, err = parseBackendTime(m.StartedAt); err != nil {
			return nil, fmt.Errorf("list meetings: meeting %s: %w", m.ID, err)
		}
		if m.EndedAt != "" {
			ended, err := parseBackendTime(m.EndedAt)
			if err != nil {
				return nil, fmt.Errorf("list meetings: meeting %s: %w", m.ID, err)
			}
			summary.EndedAt = &ended
		}
		meetings = append(meetings, summary)
	}
	return meetings, nil
}

// TriggerSync asks the backend to run its own reconciliation pass.
func (c *Client) TriggerSync(ctx context.Context) error {
	if err := c.postJSON(ctx, "/sync", nil, nil); err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}
	return nil
}

// Check implements the connectivity probe: any completed HTTP exchange with
// the backend counts as online, regardless of status code.
func (c *Client) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/meetings/active", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	drainAndClose(resp)
	return true
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ControlTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(readAPIError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func parseBackendTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func readAPIError(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	message := strings.TrimSpace(string(snippet))
	if message == "" {
		return "backend returned " + resp.Status
	}
	return "backend returned " + resp.Status + ": " + message
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
