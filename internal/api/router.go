// Package api is the HTTP surface of the assistant: the public chat proxy,
// config, and health endpoints, the server-side assistant, knowledge and
// profile routes, and token-protected management routes.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PublicConfig is the browser-visible configuration. It has no field for
// the chat or search credentials, so /api/config cannot leak them.
type PublicConfig struct {
	GoogleMapsAPIKey string
	AppEnv           string
	Debug            bool
}

// Deps holds everything the HTTP handlers use.
type Deps struct {
	Public PublicConfig

	// LLM and Model back the stateless /api/chat proxy.
	LLM   *proxy.Client
	Model string

	Assistant *chat.Assistant
	Sessions  *chat.Sessions
	Store     *storage.Store
	Profile   *profile.Manager
	Knowledge *knowledge.Base

	// AdminToken guards the management routes.
	AdminToken string

	// RateLimit is the sustained requests per second allowed per client on
	// the chat routes; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

func (d *Deps) setDefaults() {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Knowledge == nil {
		d.Knowledge = knowledge.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
}

// NewHandler returns the full HTTP handler.
func NewHandler(deps Deps) http.Handler {
	deps.setDefaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	limited := RateLimit(deps.RateLimit, deps.RateBurst, deps.Clock, deps.Metrics)

	r.With(limited).HandleFunc("/api/chat", handleChatProxy(deps))
	r.HandleFunc("/api/config", handleConfig(deps))
	r.Get("/api/health", handleHealth(deps))
	r.Get("/api/ready", handleReady(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.With(limited).Post("/api/assistant", handleAssistant(deps))
	r.Get("/api/profile", handleGetProfile(deps))
	r.Put("/api/profile", handlePutProfile(deps))
	r.Patch("/api/profile", handlePatchProfile(deps))
	r.Get("/api/disasters", handleListDisasters(deps))
	r.Get("/api/disasters/{kind}", handleGetDisaster(deps))
	r.Get("/api/recommendations", handleRecommendations(deps))
	r.Get("/api/contacts", handleContacts(deps))
	r.Get("/api/evacuation", handleEvacuation(deps))
	r.Get("/api/seasonal", handleSeasonal(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.AdminToken))
		r.Get("/api/interactions", handleListInteractions(deps))
		r.Get("/api/interactions/{id}", handleGetInteraction(deps))
		r.Delete("/api/interactions/{id}", handleDeleteInteraction(deps))
		r.Get("/api/sessions/{id}", handleGetSession(deps))
		r.Delete("/api/sessions/{id}", handleDeleteSession(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// httpError writes the structured error envelope used by every route except
// the flat-bodied public proxy endpoints.
func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
