package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/readyhouston/hdr/internal/composer"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
)

// Tier names, also used as metric labels and stored on interactions.
const (
	TierServer   = "server"
	TierDirect   = "direct"
	TierFallback = "fallback"
	TierError    = "error"
)

// ErrUnavailable is returned by a tier that has no credential or endpoint
// configured. The orchestrator moves on without logging it as a failure.
var ErrUnavailable = errors.New("tier not configured")

// Request is the input shared by every tier for one turn.
type Request struct {
	Message string
	Profile *profile.UserProfile
	Search  *search.Response
	// History holds the most recent prior turns, already capped.
	History []proxy.Message
}

// Tier is one strategy for producing an assistant reply.
type Tier interface {
	Name() string
	// Ready reports whether the tier has what it needs to attempt a reply.
	Ready() bool
	Attempt(ctx context.Context, req Request) (string, error)
}

// ProxyRequest is the body accepted by the /api/chat proxy endpoint.
type ProxyRequest struct {
	UserMessage   string           `json:"userMessage"`
	Context       ProxyContext     `json:"context"`
	SearchResults *search.Response `json:"searchResults,omitempty"`
}

// ProxyContext carries optional client-side state along with a proxy request.
type ProxyContext struct {
	UserProfile *profile.UserProfile `json:"userProfile,omitempty"`
	History     []proxy.Message      `json:"history,omitempty"`
}

// ProxyResponse is the success body of the /api/chat proxy endpoint.
type ProxyResponse struct {
	Message string `json:"message"`
}

// ServerTier asks a running hdr server's chat proxy endpoint, keeping the
// LLM credential server side.
type ServerTier struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
}

// NewServerTier creates a tier posting to baseURL + "/api/chat". An empty
// baseURL leaves the tier unavailable.
func NewServerTier(baseURL string, timeout time.Duration, metrics *observability.Metrics) *ServerTier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServerTier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
	}
}

func (t *ServerTier) Name() string { return TierServer }

func (t *ServerTier) Ready() bool { return t.baseURL != "" }

func (t *ServerTier) Attempt(ctx context.Context, req Request) (string, error) {
	if !t.Ready() {
		return "", ErrUnavailable
	}

	body, err := json.Marshal(ProxyRequest{
		UserMessage:   req.Message,
		Context:       ProxyContext{UserProfile: req.Profile, History: req.History},
		SearchResults: req.Search,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	t.metrics.Upstream("proxy", start)
	if err != nil {
		return "", fmt.Errorf("calling chat proxy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat proxy status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var out ProxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding proxy response: %w", err)
	}
	// A proxy without an LLM key answers 200 with a canned notice; treat it
	// as unavailable so local guidance is used instead.
	if out.Message == ServiceUnavailableMessage {
		return "", ErrUnavailable
	}
	if strings.TrimSpace(out.Message) == "" {
		return "", errors.New("chat proxy returned an empty message")
	}
	return out.Message, nil
}

// DirectTier calls the chat-completions API itself with a prompt built
// from the profile and search results.
type DirectTier struct {
	client  *proxy.Client
	model   string
	metrics *observability.Metrics
}

func NewDirectTier(client *proxy.Client, model string, metrics *observability.Metrics) *DirectTier {
	return &DirectTier{client: client, model: model, metrics: metrics}
}

func (t *DirectTier) Name() string { return TierDirect }

func (t *DirectTier) Ready() bool { return t.client.HasKey() }

func (t *DirectTier) Attempt(ctx context.Context, req Request) (string, error) {
	if !t.Ready() {
		return "", ErrUnavailable
	}

	system := composer.BuildSystemPrompt(req.Profile, req.Search)
	chatReq := composer.Compose(t.model, system, req.History, req.Message)

	start := time.Now()
	out, err := t.client.Complete(ctx, chatReq)
	t.metrics.Upstream("llm", start)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("llm returned an empty message")
	}
	return out, nil
}
