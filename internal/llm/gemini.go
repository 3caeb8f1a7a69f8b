package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultGeminiBaseURL is the default Gemini API base URL.
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

	// geminiProviderName identifies the provider in errors and metrics.
	geminiProviderName = "gemini"
)

// generateContentRequest is the request body for the Gemini generateContent API.
type generateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

// geminiContent holds the parts of a single conversation turn.
type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// geminiPart is a single text fragment in a content block.
type geminiPart struct {
	Text string `json:"text"`
}

// generateContentResponse is the response body from the Gemini generateContent API.
type generateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Usage      geminiUsage       `json:"usageMetadata"`
}

// geminiCandidate is a single generated completion.
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiUsage contains token usage information from the Gemini API.
type geminiUsage struct {
	PromptTokens    int `json:"promptTokenCount"`
	CandidateTokens int `json:"candidatesTokenCount"`
}

// geminiAPIErrorDetail represents the nested error object in a Gemini API error response.
type geminiAPIErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// geminiErrorResponse wraps the error payload from the Gemini API.
type geminiErrorResponse struct {
	Error geminiAPIErrorDetail `json:"error"`
}

// GeminiConfig holds the parameters needed to create a Gemini provider.
// This is defined in the llm package to avoid importing the config package.
type GeminiConfig struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the model identifier (e.g., "gemini-2.0-flash").
	Model string
	// BaseURL is the API base URL. Empty selects the public endpoint.
	BaseURL string
}

// GeminiProvider implements Summarizer using the Gemini generateContent API.
type GeminiProvider struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// NewGeminiProvider creates a new GeminiProvider with the given configuration.
// The timeout parameter controls the HTTP client timeout for API calls.
// The maxRetries parameter controls how many times transient errors are retried.
func NewGeminiProvider(cfg GeminiConfig, timeout time.Duration, maxRetries int) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}

	return &GeminiProvider{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// Summarize condenses the abstract into three Korean bullet points using the
// Gemini generateContent API. It builds the prompt via BuildSummaryPrompt,
// sends the request, and returns the trimmed text of the first candidate.
//
// Transient errors (status 429 and 5xx, network failures) are retried up to
// maxRetries times with exponential backoff. Context cancellation is respected
// between retries.
func (p *GeminiProvider) Summarize(ctx context.Context, abstract string) (string, error) {
	apiReq := generateContentRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: BuildSummaryPrompt(abstract)}}},
		},
	}

	var resp *generateContentResponse
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: context cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, lastErr = p.sendRequest(ctx, apiReq)
		if lastErr == nil {
			break
		}

		// Only retry on transient errors.
		if !isTransientError(lastErr) {
			return "", lastErr
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("gemini: all %d retries exhausted: %w", p.maxRetries, lastErr)
	}

	return parseSummary(resp)
}

// Provider returns the provider name.
func (p *GeminiProvider) Provider() string {
	return geminiProviderName
}

// Model returns the model identifier being used.
func (p *GeminiProvider) Model() string {
	return p.model
}

// sendRequest sends a single request to the Gemini generateContent API and
// returns the parsed response or an error.
func (p *GeminiProvider) sendRequest(ctx context.Context, apiReq generateContentRequest) (*generateContentResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are considered transient and eligible for retry.
		return nil, &APIError{
			Provider:   geminiProviderName,
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider:   geminiProviderName,
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGeminiAPIError(httpResp.StatusCode, respBody)
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("gemini: failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// parseSummary extracts the summary text from the first candidate.
func parseSummary(resp *generateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	summary := strings.TrimSpace(sb.String())
	if summary == "" {
		return "", fmt.Errorf("gemini: response contains no text parts")
	}

	return summary, nil
}

// parseGeminiAPIError parses a Gemini API error from the response status code and body.
func parseGeminiAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   geminiProviderName,
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Status
	}

	return apiErr
}
