package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/readyhouston/hdr/internal/observability"
)

const (
	DefaultBaseURL = "https://api.tavily.com"
	// MaxResults is the number of results requested per search.
	MaxResults     = 5
	defaultTimeout = 10 * time.Second
)

// Searcher performs a web search. Implementations return nil instead of an
// error; a failed search means the caller proceeds without augmentation.
type Searcher interface {
	Search(ctx context.Context, query string) *Response
}

// Client implements Searcher against the Tavily search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a search client. An empty apiKey yields a client whose
// searches always return nil.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Configured reports whether a search credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Search runs query (with the local suffix applied) and returns at most
// MaxResults results, or nil on a missing key, transport failure, non-2xx
// status, or undecodable body.
func (c *Client) Search(ctx context.Context, query string) *Response {
	if !c.Configured() {
		c.metrics.Search("skipped")
		return nil
	}
	resp, err := c.do(ctx, BuildQuery(query))
	if err != nil {
		c.metrics.Search("error")
		c.logger.Warn("search failed, continuing without results", "error", err)
		return nil
	}
	c.metrics.Search("ok")
	return resp
}

func (c *Client) do(ctx context.Context, query string) (*Response, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             query,
		SearchDepth:       "basic",
		IncludeAnswer:     true,
		IncludeRawContent: true,
		MaxResults:        MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.Upstream("search", start)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search API error: status %d: %s", resp.StatusCode, b)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &Response{Answer: strings.TrimSpace(tr.Answer)}
	for _, r := range tr.Results {
		if len(out.Results) == MaxResults {
			break
		}
		content := r.Content
		if content == "" {
			content = r.RawContent
		}
		out.Results = append(out.Results, Result{
			Title:   plainText(r.Title),
			URL:     r.URL,
			Content: plainText(content),
			Score:   r.Score,
		})
	}
	return out, nil
}
