package segmind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://api.segmind.com/v1/tryon-diffusion"

	maxErrorBody   = 4 << 10
	defaultTimeout = 60 * time.Second
)

// Client represents the Segmind try-on diffusion API client
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// Request is the synchronous try-on payload
type Request struct {
	ModelImage        string  `json:"model_image"`
	ClothImage        string  `json:"cloth_image"`
	Category          string  `json:"category"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int     `json:"seed"`
}

// Response carries the generated image
type Response struct {
	Image       []byte
	ContentType string
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return e.Message
}

// NewClient creates a new Segmind client. A nil httpClient gets a 60s timeout.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// TryOn runs one generation and returns the resulting image bytes
func (c *Client) TryOn(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		Image:       data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
