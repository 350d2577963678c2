// Package gcal implements the calendar backend against the Google
// Calendar REST API: free/busy lookups for the gap search and event
// insertion for placements. Authentication is an OAuth refresh-token
// flow; the access token is cached and renewed transparently.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/timeboxd/timeboxd/internal/plan"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// ErrNaiveTime rejects instants that carry no real location. Every time
// sent to the calendar must be zone-aware; a zero instant here means a
// bug upstream, not a schedulable moment.
var ErrNaiveTime = errors.New("gcal: time without location")

// APIError is a non-2xx response from the Calendar API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gcal: status %d", e.Status)
	}
	return fmt.Sprintf("gcal: status %d: %s", e.Status, e.Message)
}

// Client talks to one Google calendar.
type Client struct {
	BaseURL    string
	CalendarID string

	// Location normalizes busy intervals returned by the API.
	Location *time.Location

	// HTTP must inject authentication; see NewTokenClient.
	HTTP *http.Client
}

// NewClient creates a Client for the given calendar. An empty baseURL
// selects the public API endpoint.
func NewClient(baseURL, calendarID string, loc *time.Location, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		CalendarID: calendarID,
		Location:   loc,
		HTTP:       httpClient,
	}
}

type freeBusyRequest struct {
	TimeMin  string           `json:"timeMin"`
	TimeMax  string           `json:"timeMax"`
	TimeZone string           `json:"timeZone"`
	Items    []freeBusyItemID `json:"items"`
}

type freeBusyItemID struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// QueryBusy returns the busy intervals overlapping [start, end),
// normalized to the client's location and ascending by start.
func (c *Client) QueryBusy(ctx context.Context, start, end time.Time) ([]plan.BusyInterval, error) {
	if start.IsZero() || end.IsZero() {
		return nil, ErrNaiveTime
	}
	body := freeBusyRequest{
		TimeMin:  start.Format(time.RFC3339),
		TimeMax:  end.Format(time.RFC3339),
		TimeZone: c.Location.String(),
		Items:    []freeBusyItemID{{ID: c.CalendarID}},
	}
	var resp freeBusyResponse
	if err := c.doJSON(ctx, "/freeBusy", body, &resp); err != nil {
		return nil, err
	}

	var busy []plan.BusyInterval
	for _, raw := range resp.Calendars[c.CalendarID].Busy {
		s, err := time.Parse(time.RFC3339, raw.Start)
		if err != nil {
			return nil, fmt.Errorf("gcal: busy start %q: %w", raw.Start, err)
		}
		e, err := time.Parse(time.RFC3339, raw.End)
		if err != nil {
			return nil, fmt.Errorf("gcal: busy end %q: %w", raw.End, err)
		}
		busy = append(busy, plan.BusyInterval{Start: s.In(c.Location), End: e.In(c.Location)})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventRequest struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// CreateEvent inserts an event and returns its identifier.
func (c *Client) CreateEvent(ctx context.Context, title string, start, end time.Time, description string) (string, error) {
	if start.IsZero() || end.IsZero() {
		return "", ErrNaiveTime
	}
	tz := c.Location.String()
	body := eventRequest{
		Summary:     title,
		Description: description,
		Start:       eventTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         eventTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
	}
	var resp eventResponse
	path := fmt.Sprintf("/calendars/%s/events", c.CalendarID)
	if err := c.doJSON(ctx, path, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) doJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gcal: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gcal: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gcal: decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(data))
}

var _ plan.Calendar = (*Client)(nil)
