package api

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/storage"
)

// storedProfile returns the saved profile or nil. Lookup errors are logged
// and treated as "no profile" so knowledge routes keep working.
func (d Deps) storedProfile() *profile.UserProfile {
	if d.Profile == nil {
		return nil
	}
	p, err := d.Profile.Get()
	if err != nil {
		d.Logger.Warn("failed to load profile", "error", err)
		return nil
	}
	return p
}

// --- Profile ---

func handleGetProfile(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Profile == nil {
			httpError(w, http.StatusNotFound, "not_found", "profile not set")
			return
		}
		p, err := d.Profile.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		if p == nil {
			httpError(w, http.StatusNotFound, "not_found", "profile not set")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePutProfile(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Profile == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "profile storage is not available")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p profile.UserProfile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		saved, err := d.Profile.Save(p)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

// handlePatchProfile sets individual fields from a {"field": "value"} body.
// Fields are applied in sorted order and the first invalid one aborts.
func handlePatchProfile(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Profile == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "profile storage is not available")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields to update")
			return
		}

		for _, k := range slices.Sorted(maps.Keys(fields)) {
			if err := d.Profile.SetField(k, fields[k]); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		p, err := d.Profile.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// --- Knowledge ---

type disasterSummary struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func handleListDisasters(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kinds := d.Knowledge.Kinds()
		out := make([]disasterSummary, 0, len(kinds))
		for _, k := range kinds {
			dis, _ := d.Knowledge.Disaster(k)
			out = append(out, disasterSummary{Kind: dis.Kind, Name: dis.Name, Icon: dis.Icon, Color: dis.Color})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetDisaster returns one disaster with its checklist personalized for
// the stored profile. ?personalized=false returns the base checklist.
func handleGetDisaster(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		dis, ok := d.Knowledge.Disaster(kind)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown disaster kind %q", kind)
			return
		}

		var p *profile.UserProfile
		if v, err := strconv.ParseBool(r.URL.Query().Get("personalized")); err != nil || v {
			p = d.storedProfile()
		}
		items, err := d.Knowledge.PersonalizedChecklist(kind, p)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building checklist: %v", err)
			return
		}
		dis.Checklist = items
		writeJSON(w, http.StatusOK, dis)
	}
}

func handleRecommendations(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs := d.Knowledge.Recommendations(d.storedProfile())
		if recs == nil {
			recs = []knowledge.Recommendation{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleContacts(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Knowledge.Contacts())
	}
}

func handleEvacuation(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"guidance": d.Knowledge.EvacuationGuidance(d.storedProfile()),
		})
	}
}

// handleSeasonal lists checklist items for ?month=1..12, defaulting to the
// current month.
func handleSeasonal(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		month := d.Clock.Now().Month()
		if s := r.URL.Query().Get("month"); s != "" {
			m, err := strconv.Atoi(s)
			if err != nil || m < 1 || m > 12 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "month must be 1-12")
				return
			}
			month = time.Month(m)
		}
		items := d.Knowledge.SeasonalItems(month)
		if items == nil {
			items = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"month": month.String(), "items": items})
	}
}

// --- Management ---

func handleListInteractions(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeJSON(w, http.StatusOK, []storage.Interaction{})
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		interactions, err := d.Store.ListInteractions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleGetInteraction(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		interaction, err := d.Store.GetInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, interaction)
	}
}

func handleDeleteInteraction(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		err := d.Store.DeleteInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

type sessionResponse struct {
	SessionID string      `json:"sessionId"`
	Live      bool        `json:"live"`
	Turns     []chat.Turn `json:"turns"`
}

// handleGetSession returns a session's turns, preferring the live history
// over the persisted transcript.
func handleGetSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if sess, ok := d.Sessions.Get(id); ok {
			writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Live: true, Turns: sess.History.Turns()})
			return
		}
		var turns []chat.Turn
		if d.Store != nil {
			turns = TranscriptLoader(d.Store)(id)
		}
		if len(turns) == 0 {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Turns: turns})
	}
}

func handleDeleteSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		_, live := d.Sessions.Get(id)
		d.Sessions.Remove(id)

		stored := false
		if d.Store != nil {
			err := d.Store.DeleteTranscript(id)
			switch {
			case err == nil:
				stored = true
			case !errors.Is(err, storage.ErrNotFound):
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete transcript: %v", err)
				return
			}
		}
		if !live && !stored {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
