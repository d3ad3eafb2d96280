// Package sora wraps the Sora2-compatible video generation API: job
// submission and status polling against /v2/videos/generations.
package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrTransient tags upstream failures that only mean "no update available
// this cycle": network errors, non-2xx responses, malformed payloads. The
// poller retries on the next interval instead of giving up.
var ErrTransient = errors.New("transient upstream failure")

const defaultTimeout = 60 * time.Second

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sora api base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  client,
	}, nil
}

// GenerationRequest is the submission payload. Images carries reference
// image URLs in the order the prompt's reference map numbers them.
type GenerationRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	AspectRatio string   `json:"aspect_ratio"`
	Duration    string   `json:"duration"`
	Private     bool     `json:"private"`
	Images      []string `json:"images,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	Data   struct {
		ID     string `json:"id"`
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// Submit posts a generation job and returns the external task identifier.
func (c *Client) Submit(ctx context.Context, req GenerationRequest) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/videos/generations", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit generation: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit generation: upstream status %d", resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	taskID := firstNonEmpty(out.ID, out.TaskID, out.Data.ID, out.Data.TaskID)
	if taskID == "" {
		return "", errors.New("submit generation: response carries no task id")
	}
	return taskID, nil
}

// TaskStatus is one observation of an external job.
type TaskStatus struct {
	Status       string
	Progress     string
	VideoURL     string
	ThumbnailURL string
	FailReason   string
}

type statusResponse struct {
	Status   string `json:"status"`
	Progress string `json:"progress"`
	Data     struct {
		Output    string `json:"output"`
		Thumbnail string `json:"thumbnail"`
	} `json:"data"`
	FailReason string `json:"fail_reason"`
}

// FetchStatus queries one task. Every failure mode is reported as
// ErrTransient; callers treat it as "nothing new yet" and retry later.
func (c *Client) FetchStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := fmt.Sprintf("%s/v2/videos/generations/%s", c.baseURL, taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransient, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: upstream status %d", ErrTransient, resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	return &TaskStatus{
		Status:       out.Status,
		Progress:     out.Progress,
		VideoURL:     out.Data.Output,
		ThumbnailURL: out.Data.Thumbnail,
		FailReason:   out.FailReason,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
