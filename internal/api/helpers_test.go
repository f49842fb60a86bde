package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/storage"
)

const testToken = "test-admin-token"

var testNow = time.Date(2025, time.August, 14, 15, 30, 0, 0, time.UTC)

type stubTier struct {
	ready bool
	reply string
	err   error
}

func (s *stubTier) Name() string { return chat.TierDirect }
func (s *stubTier) Ready() bool  { return s.ready }

func (s *stubTier) Attempt(_ context.Context, _ chat.Request) (string, error) {
	if !s.ready {
		return "", chat.ErrUnavailable
	}
	return s.reply, s.err
}

type testEnv struct {
	deps    Deps
	store   *storage.Store
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

// newTestEnv wires Deps around an in-memory store, a fake clock, and an
// assistant whose only tier is tier.
func newTestEnv(t *testing.T, tier chat.Tier) *testEnv {
	t.Helper()

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := clockwork.NewFakeClockAt(testNow)
	metrics := observability.NewMetricsForTesting()

	var tiers []chat.Tier
	if tier != nil {
		tiers = append(tiers, tier)
	}
	assistant := chat.New(chat.Options{
		Tiers:   tiers,
		Logger:  observability.Discard(),
		Metrics: metrics,
	})

	return &testEnv{
		deps: Deps{
			Public:     PublicConfig{GoogleMapsAPIKey: "maps-key"},
			LLM:        proxy.NewClient(""),
			Assistant:  assistant,
			Sessions:   chat.NewSessions(16, time.Hour, clock, TranscriptLoader(store)),
			Store:      store,
			Profile:    profile.NewManagerWithClock(store, clock, time.Minute),
			AdminToken: testToken,
			Metrics:    metrics,
			Clock:      clock,
			Logger:     observability.Discard(),
		},
		store:   store,
		clock:   clock,
		metrics: metrics,
	}
}

func (e *testEnv) handler() http.Handler {
	return NewHandler(e.deps)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// errorMessage extracts error.message from the structured error envelope.
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env.Error.Message
}
