package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finetunedb/internal/models"
	"finetunedb/internal/utils"
)

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept as a reason
	maxErrorBody = 4096
)

// Client talks to the ingestion API
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *utils.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger replaces the default logger
func WithLogger(l *utils.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: utils.NewLogger("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client posts to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IngestBulk submits items to POST /ingestBulk.
// An error means the request did not complete or the body could not be decoded;
// every answer the server gave is reported through the BulkResult instead.
func (c *Client) IngestBulk(ctx context.Context, items []models.BulkItem) (BulkResult, error) {
	resp, err := c.post(ctx, "/ingestBulk", items)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return BulkOverallFailure{
			Reason:     readReason(resp),
			StatusCode: resp.StatusCode,
		}, nil
	}

	var body models.BulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	result := classify(resp.StatusCode, &body)
	c.logger.Debug("Bulk ingest response", "items", len(items), "results", len(body.Data), "status", resp.StatusCode)
	return result, nil
}

// CreateLog submits one log through POST /logs
func (c *Client) CreateLog(ctx context.Context, payload *models.LogCreatePayload) (*models.LogResponse, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	return c.single(ctx, "/logs", payload)
}

// UpdateLog patches one log through POST /log/{id}
func (c *Client) UpdateLog(ctx context.Context, id string, payload *models.LogUpdatePayload) (*models.LogResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("log id is required")
	}
	if payload == nil {
		payload = &models.LogUpdatePayload{}
	}
	if payload.ID == "" {
		payload.ID = id
	}
	return c.single(ctx, "/log/"+url.PathEscape(id), payload)
}

func (c *Client) single(ctx context.Context, path string, payload any) (*models.LogResponse, error) {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%s: %w", path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: readReason(resp)}
	}

	var body models.LogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !body.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return &body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// readReason extracts a human readable reason from an error response
func readReason(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return http.StatusText(resp.StatusCode)
	}

	var envelope utils.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(data))
}

// IsUnauthorized reports whether err came from a rejected API key
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
