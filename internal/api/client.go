package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrAPIUnavailable marks a daemon that cannot be reached.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
	Kind       string
	JobID      string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// NewClient builds a client for bind (host:port or URL). It returns nil when
// bind is empty.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		// No timeout: event streams stay open until the caller cancels.
		http:  &http.Client{},
		token: strings.TrimSpace(token),
	}, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// ListJobs fetches all jobs.
func (c *Client) ListJobs(ctx context.Context) (JobListResponse, error) {
	var out JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &out)
	return out, err
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out)
	return out.Job, err
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out)
	return out, err
}

// Cancel cancels a job.
func (c *Client) Cancel(ctx context.Context, id string) (Job, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, &out)
	return out.Job, err
}

// Export runs an export batch on the daemon.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportResponse, error) {
	var out ExportResponse
	err := c.do(ctx, http.MethodPost, "/api/exports", req, &out)
	return out, err
}

// Catalog fetches a catalog snapshot, optionally narrowed to one language.
// With refresh set the daemon refetches from the provider first.
func (c *Client) Catalog(ctx context.Context, category string, refresh bool, lang string) (CatalogResponse, error) {
	var out CatalogResponse
	path := "/api/catalog/" + url.PathEscape(category)
	method := http.MethodGet
	if refresh {
		path += "/refresh"
		method = http.MethodPost
	}
	if lang = strings.TrimSpace(lang); lang != "" {
		path += "?" + url.Values{"language": []string{lang}}.Encode()
	}
	err := c.do(ctx, method, path, nil, &out)
	return out, err
}

// Presets fetches export presets and destinations.
func (c *Client) Presets(ctx context.Context) (PresetsResponse, error) {
	var out PresetsResponse
	err := c.do(ctx, http.MethodGet, "/api/presets", nil, &out)
	return out, err
}

// Exports fetches recent export batches, newest first.
func (c *Client) Exports(ctx context.Context) (ExportListResponse, error) {
	var out ExportListResponse
	err := c.do(ctx, http.MethodGet, "/api/exports", nil, &out)
	return out, err
}

// Events streams job transitions until the job is terminal or ctx ends.
func (c *Client) Events(ctx context.Context, id string, fn func(Transition)) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var transition Transition
		if err := json.Unmarshal([]byte(data), &transition); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(transition)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	path, query, _ := strings.Cut(path, "?")
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var payload ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: payload.Error, Kind: payload.Kind, JobID: payload.JobID}
}

// IsAPIUnavailable reports whether err means the daemon is not reachable.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
