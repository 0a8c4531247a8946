package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"civicspot/models"
)

// Analysis is the classifier verdict for a submitted photo.
type Analysis struct {
	Category    string `json:"category"`
	Severity    int    `json:"severity"`
	AIGenerated bool   `json:"-"`
}

// Client abstracts the external vision classifier.
// Implementations must be concurrency-safe if used across goroutines.
type Client interface {
	// AnalyzeImage takes raw image bytes and returns a category/severity
	// verdict. Callers fall back to Default() on error.
	AnalyzeImage(ctx context.Context, photo []byte) (Analysis, error)
	// SourceName returns a short provider label for logging.
	SourceName() string
}

// Default is the documented fallback used when the classifier is
// unavailable or errors: category "Other", mid-range severity.
func Default() Analysis {
	return Analysis{
		Category:    models.DefaultCategory,
		Severity:    models.DefaultSeverity,
		AIGenerated: false,
	}
}

// HTTPClient talks to the classifier service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a classifier client with a bounded request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) SourceName() string { return "Vision" }

type analyzeRequest struct {
	Image string `json:"image"` // base64-encoded JPEG
}

type analyzeResponse struct {
	Category string `json:"category"`
	Severity int    `json:"severity"`
}

// AnalyzeImage sends the photo to the classifier and parses the verdict.
// Unknown categories collapse to the default; severity is clamped to [1, 10].
func (c *HTTPClient) AnalyzeImage(ctx context.Context, photo []byte) (Analysis, error) {
	reqBody := analyzeRequest{Image: base64.StdEncoding.EncodeToString(photo)}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/analyze", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Analysis{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Analysis{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	category := parsed.Category
	if !models.ValidCategory(category) {
		category = models.DefaultCategory
	}
	severity := parsed.Severity
	if severity < 1 {
		severity = models.DefaultSeverity
	}
	if severity > 10 {
		severity = 10
	}

	return Analysis{Category: category, Severity: severity, AIGenerated: true}, nil
}
