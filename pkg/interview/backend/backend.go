// Package backend is the JSON client for the hiring backend the interviewer
// reads context from and writes transcripts to.
//
// All paths are relative to the API root, which is the configured backend
// URL with "/api" appended:
//
//	GET  /candidates/{id}
//	PUT  /candidates/{id}            {"interview_config": {...}}
//	GET  /jobs/{id}
//	GET  /interview/context/{sessionId}
//	POST /interview/stop             {"sessionId": "...", "transcript": "..."}
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8000/api"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Client talks to the backend API.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// New creates a client rooted at apiURL (for example "http://host:8000/api").
func New(apiURL string, opts ...Option) *Client {
	o := &options{
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		apiURL = defaultBaseURL
	}
	return &Client{baseURL: apiURL, client: o.httpClient, timeout: o.timeout}
}

// APIURL derives the API root from a backend base URL.
func APIURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Record is a loosely typed JSON object as returned by the backend.
type Record map[string]any

// String returns the value at key as a string. Numbers are formatted
// without a fractional part when they are integral.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Map returns the nested object at key, or nil.
func (r Record) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// Strings returns the value at key as a list. A JSON array keeps its string
// elements; a string is split on commas.
func (r Record) Strings(key string) []string {
	var out []string
	switch v := r[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// InterviewContext is the phone-screen context payload.
type InterviewContext struct {
	CandidateName string `json:"candidateName"`
	JobTitle      string `json:"jobTitle"`
	ResumeText    string `json:"resumeText"`
}

// StopRequest ends a phone-screen session.
type StopRequest struct {
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
}

// GetCandidate fetches a candidate record.
func (c *Client) GetCandidate(ctx context.Context, id string) (Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/candidates/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutCandidate replaces fields of a candidate record.
func (c *Client) PutCandidate(ctx context.Context, id string, body map[string]any) error {
	return c.do(ctx, http.MethodPut, "/candidates/"+url.PathEscape(id), body, nil)
}

// GetJob fetches a job record.
func (c *Client) GetJob(ctx context.Context, id string) (Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetInterviewContext fetches phone-screen context.
func (c *Client) GetInterviewContext(ctx context.Context, sessionID string) (InterviewContext, error) {
	var out InterviewContext
	err := c.do(ctx, http.MethodGet, "/interview/context/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

// StopInterview submits the phone-screen transcript.
func (c *Client) StopInterview(ctx context.Context, req StopRequest) error {
	return c.do(ctx, http.MethodPost, "/interview/stop", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
	}
	return nil
}
