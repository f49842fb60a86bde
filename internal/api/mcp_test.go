package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, tier chat.Tier) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var tiers []chat.Tier
	if tier != nil {
		tiers = append(tiers, tier)
	}
	clock := clockwork.NewFakeClockAt(testNow)

	return MCPDeps{
		Assistant: chat.New(chat.Options{Tiers: tiers, Logger: observability.Discard()}),
		Sessions:  chat.NewSessions(8, time.Hour, clock, nil),
		Profile:   profile.NewManagerWithClock(store, clock, time.Minute),
		Knowledge: knowledge.Default(),
		Store:     store,
		Logger:    observability.Discard(),
		Clock:     clock,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func resourceText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	return tc.Text
}

// --- tests ---

func TestMCPTool_Ask_UsesTier(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubTier{ready: true, reply: "Fill the bathtub before the storm."})
	handler := mcpAsk(deps)

	req := makeCallToolRequest("ask", map[string]any{"message": "how do I store water?", "session_id": "mcp-1"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Fill the bathtub before the storm." {
		t.Fatalf("unexpected reply: %s", got)
	}

	sess, ok := deps.Sessions.Get("mcp-1")
	if !ok {
		t.Fatal("expected session mcp-1 to exist")
	}
	if sess.History.Len() != 2 {
		t.Fatalf("expected 2 turns in history, got %d", sess.History.Len())
	}
}

func TestMCPTool_Ask_FallsBackWithoutTiers(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]any{"message": "hurricane prep?"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(toolText(t, result), "Hurricane preparation is crucial in Houston.") {
		t.Fatalf("expected canned hurricane guidance, got: %s", toolText(t, result))
	}
}

func TestMCPTool_Ask_MissingMessage(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_Ask_BusySession(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubTier{ready: true, reply: "ok"})
	_, release, err := deps.Sessions.Acquire("held")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]any{"message": "hi", "session_id": "held"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected busy session to be reported as a tool error")
	}
}

func TestMCPTool_Ask_RecordsInteractionAndReturnsSession(t *testing.T) {
	deps, store := newTestMCPDeps(t, &stubTier{ready: true, reply: "Review your evacuation zone."})
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]any{"message": "What should I do before a hurricane?"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Content) != 2 {
		t.Fatalf("expected reply and session id, got %d content items", len(result.Content))
	}
	idText, ok := result.Content[1].(mcp.TextContent)
	if !ok || !strings.HasPrefix(idText.Text, "session_id: ") {
		t.Fatalf("expected session id content, got %#v", result.Content[1])
	}
	sessionID := strings.TrimPrefix(idText.Text, "session_id: ")

	transcript, err := store.Transcript(sessionID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(transcript) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(transcript))
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("hdr://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summaries []struct {
		Query string `json:"query"`
		Tier  string `json:"tier"`
	}
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &summaries); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Query != "What should I do before a hurricane?" {
		t.Fatalf("expected the ask in recent interactions, got %+v", summaries)
	}
	if summaries[0].Tier != chat.TierDirect {
		t.Fatalf("tier = %q, want %q", summaries[0].Tier, chat.TierDirect)
	}

	// The returned id continues the same conversation.
	if _, err := handler(context.Background(), makeCallToolRequest("ask", map[string]any{
		"message": "And after?", "session_id": sessionID,
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, ok := deps.Sessions.Get(sessionID)
	if !ok || sess.History.Len() != 4 {
		t.Fatalf("expected follow-up in the same session")
	}
}

func TestMCPTool_Checklist_Personalized(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	if err := deps.Profile.SetField("elderly", "true"); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	result, err := mcpChecklist(deps)(context.Background(), makeCallToolRequest("checklist", map[string]any{"kind": "Heat"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	if !strings.HasPrefix(text, "- [ ] ") {
		t.Fatalf("expected markdown checklist, got: %s", text)
	}
	if !strings.Contains(text, "STEAR") {
		t.Fatalf("expected elderly items in checklist, got: %s", text)
	}
}

func TestMCPTool_Checklist_UnknownKind(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	result, err := mcpChecklist(deps)(context.Background(), makeCallToolRequest("checklist", map[string]any{"kind": "volcano"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown kind")
	}
}

func TestMCPTool_SetProfileField(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	handler := mcpSetProfileField(deps)

	result, err := handler(context.Background(), makeCallToolRequest("set_profile_field", map[string]any{
		"field": "neighborhood",
		"value": "clearlake",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	p, err := deps.Profile.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p == nil || p.Neighborhood != "clearlake" {
		t.Fatalf("expected neighborhood 'clearlake', got %+v", p)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("set_profile_field", map[string]any{
		"field": "pets",
		"value": "maybe",
	}))
	if !result.IsError {
		t.Fatal("expected error for non-boolean pets value")
	}
}

func TestMCPResource_Profile(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	if err := deps.Profile.SetField("zipcode", "77002"); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	contents, err := mcpResourceProfile(deps)(context.Background(), makeReadResourceRequest("hdr://profile"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var p profile.UserProfile
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &p); err != nil {
		t.Fatalf("failed to parse profile JSON: %v", err)
	}
	if p.Zipcode != "77002" {
		t.Fatalf("expected zipcode '77002', got '%s'", p.Zipcode)
	}
}

func TestMCPResource_Contacts(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	contents, err := mcpResourceContacts(deps)(context.Background(), makeReadResourceRequest("hdr://contacts"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var contacts []knowledge.Contact
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &contacts); err != nil {
		t.Fatalf("failed to parse contacts JSON: %v", err)
	}
	if len(contacts) == 0 || contacts[0].Number != "911" {
		t.Fatalf("expected 911 first, got %+v", contacts)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, store := newTestMCPDeps(t, nil)
	long := strings.Repeat("é", 250)
	if err := store.SaveInteraction(storage.Interaction{
		ID: "ix-1", CreatedAt: testNow, UserQuery: long, Tier: chat.TierFallback, Response: "r",
	}); err != nil {
		t.Fatalf("SaveInteraction: %v", err)
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("hdr://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var summaries []struct {
		ID    string `json:"id"`
		Query string `json:"query"`
		Tier  string `json:"tier"`
	}
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &summaries); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if want := strings.Repeat("é", 200) + "..."; summaries[0].Query != want {
		t.Fatalf("expected query truncated to 200 runes, got %d runes", len([]rune(summaries[0].Query)))
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &stubTier{ready: true, reply: "ok"})
	askHandler := mcpAsk(deps)
	checklistHandler := mcpChecklist(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := makeCallToolRequest("ask", map[string]any{
				"message":    "any shelters open?",
				"session_id": fmt.Sprintf("s-%d", i),
			})
			res, err := askHandler(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if res.IsError {
				errs <- fmt.Errorf("ask %d returned tool error", i)
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("checklist", map[string]any{"kind": "flood"})
			if _, err := checklistHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _ := newTestMCPDeps(t, nil)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("expected server")
	}
}
