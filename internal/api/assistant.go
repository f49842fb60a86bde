package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/storage"
)

type assistantRequest struct {
	SessionID string       `json:"sessionId"`
	Message   string       `json:"message"`
	Context   chat.Context `json:"context"`
}

type assistantResponse struct {
	SessionID string `json:"sessionId"`
	chat.Reply
}

// handleAssistant runs the orchestrator server side for one session turn.
// The stored profile is used when the request carries none.
func handleAssistant(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req assistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		if req.Context.UserProfile == nil && d.Profile != nil {
			p, err := d.Profile.Get()
			if err != nil {
				d.Logger.Warn("assistant: failed to load profile", "error", err)
			}
			req.Context.UserProfile = p
		}

		sess, release, err := d.Sessions.Acquire(req.SessionID)
		if errors.Is(err, chat.ErrBusy) {
			httpError(w, http.StatusConflict, "conflict_error", "a reply is already in progress for this session")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "acquiring session: %v", err)
			return
		}
		defer release()

		before := sess.History.Len()
		reply := d.Assistant.Respond(r.Context(), sess.History, req.Message, req.Context)
		d.recorder().record(sess, before, req.Message, reply)

		writeJSON(w, http.StatusOK, assistantResponse{SessionID: sess.ID, Reply: reply})
	}
}

// turnRecorder persists assistant turns for the HTTP and MCP surfaces.
type turnRecorder struct {
	store  *storage.Store
	logger *slog.Logger
	clock  clockwork.Clock
}

func (d Deps) recorder() turnRecorder {
	return turnRecorder{store: d.Store, logger: d.Logger, clock: d.Clock}
}

// record writes the turns appended to sess since before to its transcript
// and records the interaction. Failures are logged only.
func (rec turnRecorder) record(sess *chat.Session, before int, msg string, reply chat.Reply) {
	if rec.store == nil {
		return
	}
	if rec.logger == nil {
		rec.logger = slog.Default()
	}
	if rec.clock == nil {
		rec.clock = clockwork.NewRealClock()
	}

	if added := sess.History.Turns()[before:]; len(added) > 0 {
		turns := make([]storage.TranscriptTurn, len(added))
		for i, t := range added {
			turns[i] = storage.TranscriptTurn{Role: t.Role, Content: t.Content, CreatedAt: t.Timestamp}
		}
		if err := rec.store.AppendTranscript(sess.ID, turns); err != nil {
			rec.logger.Warn("assistant: failed to save transcript", "session", sess.ID, "error", err)
		}
	}

	err := rec.store.SaveInteraction(storage.Interaction{
		ID:        uuid.NewString(),
		CreatedAt: rec.clock.Now(),
		SessionID: sess.ID,
		UserQuery: msg,
		Tier:      reply.Tier,
		Searched:  reply.Searched,
		Response:  reply.Message,
	})
	if err != nil {
		rec.logger.Warn("assistant: failed to record interaction", "error", err)
	}
}

// TranscriptLoader seeds new sessions from the persisted transcript.
func TranscriptLoader(store *storage.Store) func(id string) []chat.Turn {
	return func(id string) []chat.Turn {
		stored, err := store.Transcript(id)
		if err != nil || len(stored) == 0 {
			return nil
		}
		turns := make([]chat.Turn, len(stored))
		for i, t := range stored {
			turns[i] = chat.Turn{Role: t.Role, Content: t.Content, Timestamp: t.CreatedAt}
		}
		return turns
	}
}
