// Package chat is the assistant's orchestration core: it decides whether a
// message needs search augmentation, walks the reply tiers in order, and
// always produces a non-empty answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/readyhouston/hdr/internal/composer"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
)

// Context is optional caller-supplied state for one turn.
type Context struct {
	UserProfile *profile.UserProfile `json:"userProfile,omitempty"`
}

// Reply is the outcome of one turn.
type Reply struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
	// Tier names the strategy that produced Message.
	Tier     string `json:"tier"`
	Searched bool   `json:"searched"`
}

// Readiness reports which reply tiers and augmentation sources are usable.
type Readiness struct {
	Tiers  map[string]bool `json:"tiers"`
	Search bool            `json:"search"`
}

// AI reports whether any model-backed tier is available. When false every
// reply comes from local guidance.
func (r Readiness) AI() bool {
	for _, ok := range r.Tiers {
		if ok {
			return true
		}
	}
	return false
}

// Options configures an Assistant. Tiers are tried in the given order.
type Options struct {
	Tiers   []Tier
	Search  search.Searcher
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Assistant produces replies by trying each tier in order and falling back
// to canned guidance.
type Assistant struct {
	tiers   []Tier
	search  search.Searcher
	logger  *slog.Logger
	metrics *observability.Metrics

	initOnce  sync.Once
	readiness Readiness
}

// New creates an Assistant. Call Init before serving traffic; the first
// reply triggers it otherwise.
func New(opts Options) *Assistant {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		tiers:   opts.Tiers,
		search:  opts.Search,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Init checks which tiers and search are configured, logs the result once,
// and returns it. Later calls return the same report.
func (a *Assistant) Init() Readiness {
	a.initOnce.Do(func() {
		r := Readiness{Tiers: make(map[string]bool, len(a.tiers))}
		for _, t := range a.tiers {
			r.Tiers[t.Name()] = t.Ready()
		}
		if a.search != nil {
			r.Search = true
			if cf, ok := a.search.(interface{ Configured() bool }); ok {
				r.Search = cf.Configured()
			}
		}
		a.readiness = r

		attrs := []any{"search", availability(r.Search)}
		for _, t := range a.tiers {
			attrs = append(attrs, t.Name(), availability(r.Tiers[t.Name()]))
		}
		a.logger.Info("assistant initialized", attrs...)
		if !r.AI() {
			a.logger.Warn("no model-backed tier configured, replies will use local guidance")
		}
	})
	return a.readiness
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "missing"
}

// GenerateResponse returns the reply text for msg. It never fails and never
// returns an empty string.
func (a *Assistant) GenerateResponse(ctx context.Context, h *History, msg string, c Context) string {
	return a.Respond(ctx, h, msg, c).Message
}

// Respond runs one turn:
//  1. Search for live information when the message needs it and search is
//     configured; a failed search only means an unaugmented prompt.
//  2. Try each tier in order, stopping at the first non-empty reply.
//  3. Fall back to canned guidance when no tier answers.
//
// On a tier success the user message and reply are appended to h (which may
// be nil). Panics are recovered and reported as ErrorResponse.
func (a *Assistant) Respond(ctx context.Context, h *History, msg string, c Context) (reply Reply) {
	ready := a.Init()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.metrics.Panic()
			a.logger.Error("chat: recovered panic", "panic", fmt.Sprint(r))
			reply = Reply{Message: ErrorResponse, Suggestions: Suggestions(msg), Tier: TierError}
		}
		a.metrics.Response(reply.Tier)
		a.logger.Debug("chat: reply",
			"tier", reply.Tier,
			"searched", reply.Searched,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	results := a.augment(ctx, ready, msg)
	req := Request{
		Message: msg,
		Profile: c.UserProfile,
		Search:  results,
		History: h.Last(composer.MaxHistoryTurns),
	}

	for _, t := range a.tiers {
		out, err := t.Attempt(ctx, req)
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				a.logger.Warn("chat: tier failed, trying next", "tier", t.Name(), "error", err)
			}
			continue
		}
		if strings.TrimSpace(out) == "" {
			continue
		}
		if h != nil {
			h.Append(proxy.RoleUser, msg)
			h.Append(proxy.RoleAssistant, out)
		}
		return Reply{Message: out, Suggestions: Suggestions(msg), Tier: t.Name(), Searched: results != nil}
	}

	if ctx.Err() != nil {
		a.logger.Warn("chat: turn abandoned", "error", ctx.Err())
		return Reply{Message: ErrorResponse, Suggestions: Suggestions(msg), Tier: TierError, Searched: results != nil}
	}

	return Reply{
		Message:     FallbackResponse(msg, results),
		Suggestions: Suggestions(msg),
		Tier:        TierFallback,
		Searched:    results != nil,
	}
}

// augment returns search results for msg, or nil when the message does not
// need them, search is not configured, or the lookup fails.
func (a *Assistant) augment(ctx context.Context, ready Readiness, msg string) *search.Response {
	if !ready.Search || !NeedsSearch(msg) {
		return nil
	}
	r := a.search.Search(ctx, msg)
	if r != nil {
		a.logger.Debug("chat: search augmentation", "results", len(r.Results), "answer", r.Answer != "")
	}
	return r
}
