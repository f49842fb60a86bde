package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/readyhouston/hdr/internal/search"
)

func TestNeedsSearch(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Is the road to Katy closed?", true},
		{"tell me about hurricanes", true},
		{"CURRENT conditions", true},
		{"Any ideas?", true},
		{"hello", false},
		{"thanks for the help", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsSearch(tt.msg), "NeedsSearch(%q)", tt.msg)
	}
}

func TestNeedsSearch_QuestionMarkAlone(t *testing.T) {
	// No keyword, only the question mark.
	assert.True(t, NeedsSearch("Is my dog okay?"))
	assert.False(t, NeedsSearch("Is my dog okay"))
}

func TestFallbackResponse_Keywords(t *testing.T) {
	tests := []struct {
		msg    string
		prefix string
	}{
		{"What should I do before a hurricane?", "Hurricane preparation is crucial in Houston."},
		{"FLOOD help", "Houston flood safety:"},
		{"evacuation routes", "Houston evacuation zones run A-E:"},
		{"nearest shelter", "Houston emergency shelters:"},
		{"heat wave tips", "Houston heat safety (summer temps 95-105°F):"},
		{"pipes might freeze", "Houston winter weather safety:"},
		{"tornado warning", "Tornado safety in Houston:"},
		{"refinery fire smoke", "Chemical emergency guidance for the Houston area:"},
		{"what supplies do I need", "Essential emergency kit for Houston:"},
		{"how do I apply to FEMA", "After a disaster:"},
		{"hello there", "I'm here to help with Houston disaster preparedness!"},
	}
	for _, tt := range tests {
		got := FallbackResponse(tt.msg, nil)
		assert.True(t, strings.HasPrefix(got, tt.prefix), "FallbackResponse(%q) = %q", tt.msg, got)
	}
}

func TestFallbackResponse_HurricaneVerbatim(t *testing.T) {
	want := "Hurricane preparation is crucial in Houston. Key steps:\n\n" +
		"• Monitor NOAA Hurricane Center updates\n" +
		"• Know your evacuation zone (A-E)\n" +
		"• Stock 7-10 days of supplies\n" +
		"• Secure outdoor items\n" +
		"• Have evacuation plan ready\n\n" +
		"For current hurricane information, visit nhc.noaa.gov or call Harris County Emergency Management."
	assert.Equal(t, want, FallbackResponse("hurricane season", nil))
}

func TestFallbackResponse_OrderMatters(t *testing.T) {
	// "flood insurance" hits the flood entry first.
	assert.True(t, strings.HasPrefix(FallbackResponse("flood insurance", nil), "Houston flood safety:"))
}

func TestFallbackResponse_SearchAnswerWins(t *testing.T) {
	got := FallbackResponse("hurricane", &search.Response{Answer: "Storm is 200 miles out."})
	assert.True(t, strings.HasPrefix(got, "Based on current information: Storm is 200 miles out."))
	assert.Contains(t, got, "call 311")

	got = FallbackResponse("hurricane", &search.Response{Results: []search.Result{{Title: "x"}}})
	assert.True(t, strings.HasPrefix(got, "Hurricane preparation"), "results without an answer use the keyword table")
}

func TestFallbackAndErrorTextsCarryEmergencyNumbers(t *testing.T) {
	assert.Contains(t, FallbackResponse("anything", nil), "911")
	assert.Contains(t, ErrorResponse, "911")
	assert.Contains(t, ErrorResponse, "311")
}

func TestSuggestions(t *testing.T) {
	assert.Len(t, Suggestions("hello"), 4)

	got := Suggestions("What goes in a KIT? Do I need to evacuate?")
	assert.Equal(t, []string{
		"Where are the emergency shelters?",
		"How do I file an insurance claim?",
	}, got)

	assert.Empty(t, Suggestions("kit evacuate shelter insurance"))
}
