package kling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api-singapore.klingai.com"
	DefaultModel   = "kolors-virtual-try-on-v1-5"

	tryOnPath      = "/v1/image/virtual-try-on"
	maxErrorBody   = 4 << 10
	defaultTimeout = 60 * time.Second
)

// maxImageSize caps a downloaded result image
var maxImageSize int64 = 32 << 20

// Client represents the Kling AI virtual try-on API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the remote answered 404
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether the same request may succeed later: server
// errors, request timeouts and rate limiting.
func (e *APIError) IsRetryable() bool {
	switch {
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// SubmitRequest is the payload of a new try-on task
type SubmitRequest struct {
	Model          string `json:"model"`
	TaskType       string `json:"task_type"`
	SourceImage    string `json:"source_image"`
	ReferenceImage string `json:"reference_image"`
	Category       string `json:"category"`
}

// StatusResponse is the task status document returned by the API
type StatusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Data   *struct {
		Result *struct {
			Images []string `json:"images"`
		} `json:"result"`
		Error string `json:"error"`
	} `json:"data"`
}

// Images returns the result image URLs, if any
func (r *StatusResponse) Images() []string {
	if r.Data == nil || r.Data.Result == nil {
		return nil
	}
	return r.Data.Result.Images
}

// ErrorMessage returns the remote failure reason, if any
func (r *StatusResponse) ErrorMessage() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.Error
}

// NewClient creates a new Kling AI client. A nil httpClient gets a 60s timeout.
func NewClient(baseURL, apiKey, secretKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		secretKey:  secretKey,
	}
}

// SubmitTask queues a try-on task and returns its remote identifier
func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.TaskType == "" {
		req.TaskType = "virtual_try_on"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tryOnPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", readAPIError(resp)
	}

	var result struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("no task_id returned from Kling AI API")
	}

	return result.TaskID, nil
}

// TaskStatus fetches the current status of a task
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, tryOnPath, url.PathEscape(taskID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var result StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// Download fetches a result image
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > maxImageSize {
		return nil, fmt.Errorf("image body exceeds %d bytes", maxImageSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}

	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Secret-Key", c.secretKey)
}

func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			msg = payload.Message
		} else if payload.Error != "" {
			msg = payload.Error
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
