package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhilbhutani/docgen/internal/models"
)

// APIError is a non-2xx answer from the docgen API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Client talks to a running docgen API server.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 60 * time.Second},
	}
}

type JobStatus struct {
	ID              string           `json:"id"`
	Status          models.JobStatus `json:"status"`
	Error           string           `json:"error"`
	Category        string           `json:"category"`
	Language        string           `json:"language"`
	MissingRequired []string         `json:"missing_required"`
	Usage           *models.Usage    `json:"usage"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
}

func (c *Client) Job(ctx context.Context, id string) (*JobStatus, error) {
	var s JobStatus
	if err := c.getJSON(ctx, "/api/v1/jobs/"+url.PathEscape(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Result(ctx context.Context, id string) (string, error) {
	var r struct {
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, "/api/v1/jobs/"+url.PathEscape(id)+"/result", &r); err != nil {
		return "", err
	}
	return r.Content, nil
}

// Export downloads the rendered document and the file name the server chose.
func (c *Client) Export(ctx context.Context, id, format string) (string, []byte, error) {
	path := "/api/v1/jobs/" + url.PathEscape(id) + "/export?format=" + url.QueryEscape(format)
	resp, err := c.do(ctx, path)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}
	name := id + "." + format
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	return resp, nil
}
