// Package jira creates issues in Jira Cloud on behalf of a user.
package jira

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

	"github.com/rs/zerolog/log"
)

const (
	DefaultProjectKey = "PROJ"
	DefaultIssueType  = "Task"
	MaxSummaryRunes   = 255
)

var ErrNotConfigured = errors.New("jira is not configured")

type Credentials struct {
	Domain   string
	Email    string
	APIToken string
}

type IssueInput struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
}

type Issue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	URL string `json:"url"`
}

// APIError is a non-2xx answer from Jira.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira status %d: %s", e.Status, e.Message)
}

// NormalizeDomain strips the scheme and any trailing slash from a site name.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	lower := strings.ToLower(d)
	switch {
	case strings.HasPrefix(lower, "https://"):
		d = d[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		d = d[len("http://"):]
	}
	return strings.TrimSuffix(d, "/")
}

// Client is an HTTP client for the Jira Cloud REST API v3.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient}
}

type adfText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type adfNode struct {
	Type    string    `json:"type"`
	Content []adfText `json:"content"`
}

type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type issueFields struct {
	Project     map[string]string `json:"project"`
	Summary     string            `json:"summary"`
	Description adfDoc            `json:"description"`
	IssueType   map[string]string `json:"issuetype"`
}

// CreateIssue posts a new issue. The input is expected to be normalised
// already; only the summary length is enforced here.
func (c *Client) CreateIssue(ctx context.Context, creds Credentials, input IssueInput) (Issue, error) {
	summary := truncateRunes(input.Summary, MaxSummaryRunes)
	payload := map[string]issueFields{
		"fields": {
			Project: map[string]string{"key": input.ProjectKey},
			Summary: summary,
			Description: adfDoc{
				Type:    "doc",
				Version: 1,
				Content: []adfNode{{Type: "paragraph", Content: []adfText{{Type: "text", Text: input.Description}}}},
			},
			IssueType: map[string]string{"name": input.IssueType},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Issue{}, fmt.Errorf("marshal issue: %w", err)
	}

	endpoint := "https://" + creds.Domain + "/rest/api/3/issue"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Issue{}, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(creds.Email, creds.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("provider", "jira").Str("domain", creds.Domain).Msg("jira request failed")
		return Issue{}, fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()
	log.Info().Str("provider", "jira").Str("domain", creds.Domain).Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).Msg("jira create issue")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Issue{}, fmt.Errorf("read jira response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Issue{}, &APIError{Status: resp.StatusCode, Message: errorMessage(resp, raw)}
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return Issue{}, fmt.Errorf("decode jira response: %w", err)
	}
	return Issue{
		ID:  created.ID,
		Key: created.Key,
		URL: "https://" + creds.Domain + "/browse/" + created.Key,
	}, nil
}

func errorMessage(resp *http.Response, raw []byte) string {
	var body struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := strings.TrimSpace(strings.Join(body.ErrorMessages, " ")); msg != "" {
			return msg
		}
		if len(body.Errors) > 0 {
			fields := make([]string, 0, len(body.Errors))
			for field := range body.Errors {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			values := make([]string, 0, len(fields))
			for _, field := range fields {
				values = append(values, body.Errors[field])
			}
			return strings.Join(values, ", ")
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "Failed to create Jira issue"
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
