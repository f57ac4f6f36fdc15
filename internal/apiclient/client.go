package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/models"
)

const defaultTimeout = 30 * time.Second

// Client talks to the external job and user stores over HTTP. It
// implements interfaces.JobStore and interfaces.UserStore.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

// New creates an API client for the given base URL
func New(baseURL string, logger arbor.ILogger) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid API base URL: %q", baseURL)
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}, nil
}

// ListJobs fetches jobs for a user, optionally filtered by status
func (c *Client) ListJobs(ctx context.Context, userID string, status models.JobStatus, pageSize int) ([]models.Job, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	if status != "" {
		query.Set("status", string(status))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}

	var response struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := c.get(ctx, "/api/jobs?"+query.Encode(), &response); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return response.Jobs, nil
}

// GetJob fetches one job by id
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.get(ctx, "/api/jobs/"+url.PathEscape(id), &job); err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateJobStatus reports an attempt outcome back to the job store
func (c *Client) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, blockerType models.BlockerType, blockerDetails string) error {
	payload := map[string]string{
		"status": string(status),
	}
	if blockerType != "" {
		payload["blocker_kind"] = string(blockerType)
		payload["blocker_details"] = blockerDetails
	}

	if err := c.patch(ctx, "/api/jobs/"+url.PathEscape(id)+"/status", payload); err != nil {
		return fmt.Errorf("failed to update job %s status: %w", id, err)
	}
	return nil
}

// GetUser fetches a user profile
func (c *Client) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	var user models.UserProfile
	if err := c.get(ctx, "/api/users/"+url.PathEscape(id), &user); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// GetLinkedInStatus reports whether the user has a linked LinkedIn
// session
func (c *Client) GetLinkedInStatus(ctx context.Context, userID string) (bool, error) {
	var response struct {
		Linked bool `json:"linked"`
	}
	if err := c.get(ctx, "/api/users/"+url.PathEscape(userID)+"/linkedin", &response); err != nil {
		return false, fmt.Errorf("failed to get linkedin status for %s: %w", userID, err)
	}
	return response.Linked, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) patch(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
