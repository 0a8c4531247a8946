package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"civicspot/drafts"
	"civicspot/models"
)

// ErrTransient marks a failure worth retrying: network errors, timeouts and
// 5xx responses. The sync engine backs off and tries again.
var ErrTransient = errors.New("transient submission failure")

// ErrValidation marks a permanent rejection (4xx). Retrying the same draft
// cannot succeed; the sync engine parks it for the user.
var ErrValidation = errors.New("submission rejected")

// SubmitResult is the server's answer to one submission. Exactly one of
// Report (created) or Conflict (collapsed into an existing report) is set;
// both are terminal successes for the draft.
type SubmitResult struct {
	Created  bool
	Report   *models.Report
	Conflict *models.ConflictResult
}

// Client submits drafts to the ingestion API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates an API client authenticating with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Submit sends one draft payload to the server and classifies the outcome.
// The photo is read from the draft's PhotoRef at submission time; a missing
// photo file is a permanent failure.
func (c *Client) Submit(ctx context.Context, p drafts.Payload) (*SubmitResult, error) {
	photo, err := os.ReadFile(p.PhotoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read photo %s: %v", ErrValidation, p.PhotoRef, err)
	}

	reqBody := models.SubmitReportRequest{
		Version:   "2.0",
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Category:  p.Category,
		Note:      p.Note,
		Photo:     photo,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal submission: %v", ErrValidation, err)
	}

	url := c.baseURL + "/api/v3/reports"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures and timeouts: the submission may or may not
		// have landed. Idempotent server-side ingestion makes the retry safe.
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var parsed models.SubmitReportResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", ErrTransient, err)
		}
		if parsed.Report == nil {
			return nil, fmt.Errorf("%w: created response missing report", ErrTransient)
		}
		return &SubmitResult{Created: true, Report: parsed.Report}, nil

	case resp.StatusCode == http.StatusConflict:
		var parsed models.SubmitReportResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("%w: failed to decode conflict response: %v", ErrTransient, err)
		}
		if parsed.Duplicate == nil {
			return nil, fmt.Errorf("%w: conflict response missing duplicate details", ErrTransient)
		}
		return &SubmitResult{Conflict: parsed.Duplicate}, nil

	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: server returned status %d", ErrTransient, resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrValidation, resp.StatusCode, string(body))
	}
}

// Ping probes the server's health endpoint. Used as the connectivity check.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
