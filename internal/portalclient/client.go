// Package portalclient talks to the classroll API on behalf of a teacher. It
// implements marking.RosterProvider and marking.AttendanceStore over HTTP.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classroll/internal/marking"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("portal returned %d", e.Status)
}

// Client calls the teacher endpoints of the API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var (
	_ marking.RosterProvider  = (*Client)(nil)
	_ marking.AttendanceStore = (*Client)(nil)
)

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// LoadRoster fetches the session roster with stored marks.
func (c *Client) LoadRoster(ctx context.Context, actor marking.Actor, sessionID int64) (marking.Roster, error) {
	var out marking.Roster
	if err := c.do(ctx, actor, http.MethodGet, c.sessionPath(sessionID, "roster"), nil, &out); err != nil {
		return marking.Roster{}, err
	}
	return out, nil
}

// SubmitAttendance posts every record in one request.
func (c *Client) SubmitAttendance(ctx context.Context, actor marking.Actor, sessionID int64, records []marking.SubmissionRecord) error {
	body := struct {
		AttendanceRecords []marking.SubmissionRecord `json:"attendanceRecords"`
	}{records}
	return c.do(ctx, actor, http.MethodPost, c.sessionPath(sessionID, "attendance"), body, nil)
}

func (c *Client) sessionPath(sessionID int64, suffix string) string {
	return fmt.Sprintf("%s/v1/teacher/sessions/%d/%s", c.BaseURL, sessionID, suffix)
}

func (c *Client) do(ctx context.Context, actor marking.Actor, method, url string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor.Token != "" {
		req.Header.Set("Authorization", "Bearer "+actor.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &Error{Status: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		e.Code, e.Message = body.Code, body.Message
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}
