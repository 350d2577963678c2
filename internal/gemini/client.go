// Package gemini implements the optional AI subtask suggester on the
// Gemini generateContent API. Every failure mode surfaces as an error;
// the caller falls back to its deterministic split, so a broken or
// rate-limited model never blocks planning.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/timeboxd/timeboxd/internal/plan"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrEmptyResponse means the model answered without usable content.
var ErrEmptyResponse = errors.New("gemini: empty response")

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: status %d", e.Status)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.Status, e.Message)
}

// Client calls one Gemini model.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	HTTP *http.Client
}

// NewClient creates a Client for the given model. An empty baseURL
// selects the public API endpoint.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type suggestion struct {
	Subtasks []struct {
		Title   string `json:"title"`
		Minutes int    `json:"minutes"`
	} `json:"subtasks"`
}

// Suggest asks the model to split a task into ordered subtasks with
// minute estimates.
func (c *Client) Suggest(ctx context.Context, req plan.SuggestRequest) ([]plan.Subtask, error) {
	body := generateRequest{Contents: []content{{Parts: []part{{Text: prompt(req)}}}}}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	return parseSubtasks(gr.Candidates[0].Content.Parts[0].Text)
}

// prompt renders the instruction the model answers with bare JSON.
func prompt(req plan.SuggestRequest) string {
	var b strings.Builder
	b.WriteString("Split the following task into 2-6 ordered subtasks with realistic minute estimates.\n")
	b.WriteString("Answer with JSON only, shaped exactly like {\"subtasks\":[{\"title\":\"...\",\"minutes\":30}]}.\n")
	fmt.Fprintf(&b, "Task: %s\n", req.Title)
	if req.OverrideMinutes > 0 {
		fmt.Fprintf(&b, "Each subtask should take about %d minutes.\n", req.OverrideMinutes)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", req.Notes)
	}
	return b.String()
}

// parseSubtasks extracts the JSON object from the model text. Models
// routinely wrap the object in prose or a code fence, so parsing starts
// at the first brace and ends at the last one.
func parseSubtasks(text string) ([]plan.Subtask, error) {
	open := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if open < 0 || end <= open {
		return nil, fmt.Errorf("gemini: no JSON object in response: %w", ErrEmptyResponse)
	}
	var s suggestion
	if err := json.Unmarshal([]byte(text[open:end+1]), &s); err != nil {
		return nil, fmt.Errorf("gemini: parse suggestion: %w", err)
	}
	if len(s.Subtasks) == 0 {
		return nil, ErrEmptyResponse
	}
	subs := make([]plan.Subtask, 0, len(s.Subtasks))
	for _, raw := range s.Subtasks {
		subs = append(subs, plan.Subtask{Title: strings.TrimSpace(raw.Title), Minutes: raw.Minutes})
	}
	return subs, nil
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

var _ plan.Suggester = (*Client)(nil)
