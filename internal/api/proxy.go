package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/composer"
	"github.com/readyhouston/hdr/internal/proxy"
)

// handleChatProxy forwards one message to the LLM with a server-built
// system prompt, keeping the credential on the server.
func handleChatProxy(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed"})
			return
		}

		if !d.LLM.HasKey() {
			d.Metrics.Proxy("no_key")
			writeJSON(w, http.StatusOK, chat.ProxyResponse{Message: chat.ServiceUnavailableMessage})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chat.ProxyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			d.Metrics.Proxy("bad_request")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body", "details": err.Error()})
			return
		}

		system := composer.BuildSystemPrompt(req.Context.UserProfile, req.SearchResults)
		chatReq := composer.Compose(d.Model, system, conversationTurns(req.Context.History), req.UserMessage)

		start := time.Now()
		out, err := d.LLM.Complete(r.Context(), chatReq)
		d.Metrics.Upstream("llm", start)
		if err != nil {
			var ue *proxy.UpstreamError
			if errors.As(err, &ue) {
				d.Metrics.Proxy("upstream_error")
				d.Logger.Warn("chat proxy: upstream error", "status", ue.Status)
				writeJSON(w, ue.Status, map[string]string{"error": ue.Body})
				return
			}
			d.Metrics.Proxy("error")
			d.Logger.Error("chat proxy: request failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server error", "details": err.Error()})
			return
		}

		d.Metrics.Proxy("ok")
		writeJSON(w, http.StatusOK, chat.ProxyResponse{Message: out})
	}
}

// conversationTurns keeps only user and assistant turns from client-supplied
// history so callers cannot inject extra system messages.
func conversationTurns(history []proxy.Message) []proxy.Message {
	out := make([]proxy.Message, 0, len(history))
	for _, m := range history {
		if m.Role == proxy.RoleUser || m.Role == proxy.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

type publicConfigResponse struct {
	GoogleMapsAPIKey string `json:"GOOGLE_MAPS_API_KEY"`
	MistralAPIKey    string `json:"MISTRAL_API_KEY"`
	TavilyAPIKey     string `json:"TAVILY_API_KEY"`
	AppEnv           string `json:"APP_ENV"`
	DebugMode        string `json:"DEBUG_MODE"`
}

// handleConfig exposes the public map key. The chat and search keys are
// always sent as empty strings.
func handleConfig(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method Not Allowed"})
			return
		}
		debug := "false"
		if d.Public.Debug {
			debug = "true"
		}
		env := d.Public.AppEnv
		if env == "" {
			env = "production"
		}
		writeJSON(w, http.StatusOK, publicConfigResponse{
			GoogleMapsAPIKey: d.Public.GoogleMapsAPIKey,
			AppEnv:           env,
			DebugMode:        debug,
		})
	}
}

func handleHealth(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": d.Clock.Now().UnixMilli(),
		})
	}
}

const readyTimeout = 3 * time.Second

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	// Tiers reports which reply tiers the server-side assistant can use.
	Tiers map[string]bool `json:"tiers,omitempty"`
}

// handleReady probes storage and the LLM concurrently. Only a storage
// failure makes the service unready; a missing or failing LLM degrades it.
func handleReady(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		storeStatus, llmStatus := "ok", "ok"
		var g errgroup.Group
		g.Go(func() error {
			if d.Store == nil {
				storeStatus = "disabled"
				return nil
			}
			if err := d.Store.Ping(ctx); err != nil {
				storeStatus = err.Error()
				return err
			}
			return nil
		})
		g.Go(func() error {
			if !d.LLM.HasKey() {
				llmStatus = "missing"
				return nil
			}
			if _, err := d.LLM.ListModels(ctx); err != nil {
				llmStatus = err.Error()
			}
			return nil
		})
		storeErr := g.Wait()

		resp := readyResponse{
			Status: "ready",
			Checks: map[string]string{"store": storeStatus, "llm": llmStatus},
		}
		if d.Assistant != nil {
			rd := d.Assistant.Init()
			resp.Tiers = rd.Tiers
			resp.Checks["search"] = "missing"
			if rd.Search {
				resp.Checks["search"] = "ok"
			}
		}

		code := http.StatusOK
		switch {
		case storeErr != nil:
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		case llmStatus != "ok":
			resp.Status = "degraded"
		}
		writeJSON(w, code, resp)
	}
}
