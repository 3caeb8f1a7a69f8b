package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
	"github.com/mark2rocket/ag-studyletter/internal/observability"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 20

	// DefaultUserAgent identifies the service to the arXiv API.
	DefaultUserAgent = "studyletter/1.0"

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"

	// queryEndpoint labels search requests in metrics.
	queryEndpoint = "query"
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Client queries the arXiv Atom search API.
type Client struct {
	config     Config
	httpClient *HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// New creates a new arXiv client with the given configuration.
// metrics may be nil when request metrics are not wanted.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := NewHTTPClient(HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: cfg.UserAgent,
	}, metrics)

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// Search queries arXiv for papers matching the keyword, newest submissions
// first. max caps the number of results requested from the API; values <= 0
// fall back to the configured maximum.
func (c *Client) Search(ctx context.Context, keyword string, max int) ([]domain.Paper, error) {
	startTime := time.Now()

	logger := observability.WithSearchContext(c.logger, keyword, sourceName)
	if runID := observability.RunIDFromContext(ctx); runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}

	searchURL, err := c.buildSearchURL(keyword, max)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure("network")
		return nil, domain.NewExternalAPIError(sourceName, 0, "search request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		c.recordFailure("http_error")
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		c.recordFailure("decode_error")
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, "decoding response failed", err)
	}

	papers := make([]domain.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		paper, ok := entryToPaper(&feed.Entries[i])
		if ok {
			papers = append(papers, paper)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordSourceRequest(queryEndpoint, time.Since(startTime).Seconds())
	}
	logger.Debug().
		Int("total_results", feed.TotalResults).
		Int("papers", len(papers)).
		Dur("duration", time.Since(startTime)).
		Msg("arXiv search completed")

	return papers, nil
}

func (c *Client) recordFailure(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordSourceRequestFailed(queryEndpoint, errorType)
	}
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(keyword string, max int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	if max <= 0 {
		max = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("search_query", "all:"+keyword)
	query.Set("max_results", strconv.Itoa(max))
	// Sort by submission date (newest first)
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// entryToPaper converts an arXiv Atom entry to a domain Paper.
// Entries without a recognizable arXiv ID are skipped.
func entryToPaper(entry *Entry) (domain.Paper, bool) {
	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return domain.Paper{}, false
	}

	// arXiv includes leading/trailing whitespace and newlines in titles
	// and abstracts.
	title := domain.NormalizeWhitespace(entry.Title)
	abstract := domain.NormalizeWhitespace(entry.Summary)
	if title == "" {
		return domain.Paper{}, false
	}

	var publishedAt time.Time
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			publishedAt = t.UTC()
		}
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	// Prefer the explicit PDF link; fall back to the canonical PDF URL.
	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "http://arxiv.org/pdf/" + arxivID
	}

	return domain.Paper{
		Title:       title,
		Authors:     authors,
		Abstract:    abstract,
		SourceURL:   pdfURL,
		PublishedAt: publishedAt,
	}, true
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
