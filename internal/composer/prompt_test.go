package composer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
)

func TestBuildSystemPrompt_RoleOnly(t *testing.T) {
	got := BuildSystemPrompt(nil, nil)
	if got != Role {
		t.Errorf("prompt without inputs should equal the role text, got %d chars", len(got))
	}
	if !strings.HasPrefix(got, "You are an expert Houston Disaster Response Assistant.") {
		t.Errorf("prompt does not start with the role: %q", got[:60])
	}
}

func TestBuildSystemPrompt_SearchResults(t *testing.T) {
	r := &search.Response{Answer: "Shelters are open."}
	for i := range 5 {
		r.Results = append(r.Results, search.Result{
			Title:   fmt.Sprintf("Title %d", i),
			Content: strings.Repeat("x", 500),
		})
	}

	got := BuildSystemPrompt(nil, r)

	if !strings.Contains(got, "Current real-time information from search:") {
		t.Error("missing search header")
	}
	for i := range 3 {
		if !strings.Contains(got, fmt.Sprintf("- Title %d: ", i)) {
			t.Errorf("missing result %d", i)
		}
	}
	if strings.Contains(got, "Title 3") || strings.Contains(got, "Title 4") {
		t.Error("more than 3 results injected")
	}
	want := "- Title 0: " + strings.Repeat("x", MaxSnippetChars) + "...\n"
	if !strings.Contains(got, want) {
		t.Error("result content not truncated to 200 characters")
	}
	if strings.Contains(got, strings.Repeat("x", MaxSnippetChars+1)) {
		t.Error("result content longer than 200 characters")
	}
	if !strings.Contains(got, "Search summary: Shelters are open.") {
		t.Error("missing search summary")
	}
}

func TestBuildSystemPrompt_EmptySearch(t *testing.T) {
	got := BuildSystemPrompt(nil, &search.Response{})
	if strings.Contains(got, "real-time information") {
		t.Error("empty search response should add nothing")
	}
}

func TestBuildSystemPrompt_MultiByteTruncation(t *testing.T) {
	r := &search.Response{Results: []search.Result{{Title: "T", Content: strings.Repeat("é", 300)}}}
	got := BuildSystemPrompt(nil, r)
	if !strings.Contains(got, "- T: "+strings.Repeat("é", MaxSnippetChars)+"...") {
		t.Error("expected 200 runes of content")
	}
	if strings.ContainsRune(got, '�') {
		t.Error("truncation split a rune")
	}
}

func TestBuildSystemPrompt_Profile(t *testing.T) {
	p := &profile.UserProfile{
		Neighborhood:         "memorial",
		HousingType:          "apartment",
		EvacuationCapability: "public-transit",
		Language:             "vi",
	}

	got := BuildSystemPrompt(p, nil)

	for _, want := range []string{
		"User context:",
		"- Location: memorial",
		"- Housing: apartment",
		"- Evacuation capability: public-transit",
		"- Language preference: Tiếng Việt",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	idx := strings.Index(got, "User context:")
	if tail := got[idx:]; len(tail) > profile.MaxSummaryChars {
		t.Errorf("profile section is %d bytes, want <= %d", len(tail), profile.MaxSummaryChars)
	}
}

func TestBuildSystemPrompt_IsPure(t *testing.T) {
	p := &profile.UserProfile{Neighborhood: "heights"}
	r := &search.Response{Results: []search.Result{{Title: "a", Content: "b"}}}
	if BuildSystemPrompt(p, r) != BuildSystemPrompt(p, r) {
		t.Error("same inputs produced different prompts")
	}
}

func TestCompose_HistoryCapped(t *testing.T) {
	var history []proxy.Message
	for i := range 60 {
		role := proxy.RoleUser
		if i%2 == 1 {
			role = proxy.RoleAssistant
		}
		history = append(history, proxy.Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	req := Compose("", "sys", history, "new question")

	if len(req.Messages) != 1+MaxHistoryTurns+1 {
		t.Fatalf("messages = %d, want %d", len(req.Messages), MaxHistoryTurns+2)
	}
	if req.Messages[0].Role != proxy.RoleSystem || req.Messages[0].Content != "sys" {
		t.Errorf("first message = %+v", req.Messages[0])
	}
	if req.Messages[1].Content != "turn 50" {
		t.Errorf("oldest kept turn = %q, want turn 50", req.Messages[1].Content)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != proxy.RoleUser || last.Content != "new question" {
		t.Errorf("last message = %+v", last)
	}
	if req.Model != proxy.DefaultModel || req.MaxTokens != 800 || req.Temperature != 0.7 {
		t.Errorf("request params = %q/%d/%v", req.Model, req.MaxTokens, req.Temperature)
	}
}

func TestCompose_DoesNotMutateHistory(t *testing.T) {
	history := make([]proxy.Message, 2, 10)
	history[0] = proxy.Message{Role: proxy.RoleUser, Content: "a"}
	history[1] = proxy.Message{Role: proxy.RoleAssistant, Content: "b"}

	Compose("m", "sys", history, "c")

	if history[:cap(history)][2].Content != "" {
		t.Error("Compose wrote into the caller's history backing array")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"hello world", 3},
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
	}

	for _, tt := range tests {
		got := EstimateTokens(tt.input)
		if got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
