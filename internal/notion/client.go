// Package notion implements the task-store client against the Notion
// REST API. It exposes the tasks database as the placer's TaskSource:
// due, unplanned pages in; planned flags and event ids out.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/timeboxd/timeboxd/internal/plan"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	queryPageSize  = 50

	// dateOnly matches Notion date properties without a time component.
	dateOnly = "2006-01-02"
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("notion: status %d", e.Status)
	}
	return fmt.Sprintf("notion: status %d: %s", e.Status, e.Message)
}

// Client talks to one Notion tasks database.
type Client struct {
	BaseURL    string
	Token      string
	DatabaseID string

	// Location is the configured timezone; date-only due values are
	// localized into it.
	Location *time.Location

	HTTP *http.Client
}

// NewClient creates a Client for the given database. An empty baseURL
// selects the public API endpoint.
func NewClient(baseURL, token, databaseID string, loc *time.Location, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		DatabaseID: databaseID,
		Location:   loc,
		HTTP:       &http.Client{Timeout: timeout},
	}
}

// FetchDueUnplanned queries the database for pages with Planned? unset
// and a Due date present, in store order.
func (c *Client) FetchDueUnplanned(ctx context.Context) ([]plan.Task, error) {
	body := queryRequest{
		Filter: filter{And: []condition{
			{Property: propPlanned, Checkbox: &checkboxCond{Equals: false}},
			{Property: propDue, Date: &dateCondition{IsNotEmpty: true}},
		}},
		PageSize: queryPageSize,
	}
	var resp queryResponse
	path := fmt.Sprintf("/databases/%s/query", c.DatabaseID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	tasks := make([]plan.Task, 0, len(resp.Results))
	for _, pg := range resp.Results {
		tasks = append(tasks, c.taskOf(pg))
	}
	return tasks, nil
}

// MarkPlanned flags a page as planned and writes the created event ids,
// comma-joined, in placement order. Safe to repeat.
func (c *Client) MarkPlanned(ctx context.Context, taskID string, eventIDs []string) error {
	body := updateRequest{Properties: map[string]any{
		propPlanned: map[string]any{"checkbox": true},
		propEventIDs: map[string]any{
			"rich_text": []richText{{
				Type: "text",
				Text: &textSpan{Content: strings.Join(eventIDs, ",")},
			}},
		},
	}}
	return c.doJSON(ctx, http.MethodPatch, "/pages/"+taskID, body, nil)
}

// taskOf flattens a page into the placer's task shape.
func (c *Client) taskOf(pg page) plan.Task {
	t := plan.Task{
		ID:    pg.ID,
		Title: plainText(pg.Properties[propTitle].Title),
		Notes: plainText(pg.Properties[propNotes].RichText),
	}
	if t.Title == "" {
		t.Title = "Untitled"
	}
	if n := pg.Properties[propEstimate].Number; n != nil {
		t.EstimateMinutes = int(*n)
	}
	if b := pg.Properties[propBreakdown].Checkbox; b != nil {
		t.NeedsBreakdown = *b
	}
	if d := pg.Properties[propDue].Date; d != nil {
		t.Due = c.parseDue(d.Start)
	}
	return t
}

// parseDue converts a Notion date string to an instant in the configured
// timezone. Date-only values are localized; unparseable values stay zero
// so the placer skips the task instead of guessing.
func (c *Client) parseDue(s string) time.Time {
	if due, err := time.Parse(time.RFC3339, s); err == nil {
		return due.In(c.Location)
	}
	if due, err := time.ParseInLocation(dateOnly, s, c.Location); err == nil {
		return due
	}
	return time.Time{}
}

func plainText(spans []richText) string {
	var b strings.Builder
	for _, span := range spans {
		b.WriteString(span.PlainText)
	}
	return b.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notion: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notion: %s %s: %w", method, path, err)
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
		return fmt.Errorf("notion: decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}

var _ plan.TaskSource = (*Client)(nil)
