package composer

import (
	"fmt"
	"strings"

	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
)

const (
	// MaxSearchResults is the number of search results injected into a prompt.
	MaxSearchResults = 3
	// MaxSnippetChars caps each injected result's content, in characters.
	MaxSnippetChars = 200
	// MaxHistoryTurns caps the prior turns sent to the LLM.
	MaxHistoryTurns = 10
)

// Role is the fixed assistant role description that opens every system prompt.
const Role = `You are an expert Houston Disaster Response Assistant. You help residents prepare for, respond to, and recover from disasters in the Houston, Texas area.

Key responsibilities:
- Provide accurate, actionable disaster preparedness advice
- Give Houston-specific guidance (hurricanes, floods, heat waves, winter storms, chemical emergencies)
- Help users understand evacuation zones, shelter locations, and emergency resources
- Offer personalized advice based on user context
- Stay calm and reassuring while being informative
- Use clear, simple language accessible to all education levels

IMPORTANT: If the user asks about non-disaster topics, you can provide general information but always try to connect it back to emergency preparedness or Houston context when relevant.

Houston-specific context:
- Hurricane season: June-November (peak: August-October)
- Major flood risk areas: downtown, bayou areas, coastal regions
- Harris County Flood Control District manages flood warnings
- Evacuation zones: A (most vulnerable) to E (least vulnerable)
- Major hospitals: Memorial Hermann, Houston Methodist, MD Anderson
- Key agencies: Harris County Office of Emergency Management, Houston Emergency Management

Response guidelines:
- Keep responses conversational and informative
- Provide specific, actionable steps when discussing disasters
- Include relevant phone numbers when appropriate
- Mention local resources and programs when relevant
- If unsure about current conditions, recommend official sources
- For general questions, provide accurate information and relate to emergency preparedness when possible`

// BuildSystemPrompt assembles the system prompt from the fixed role, up to
// MaxSearchResults search snippets, the search answer, and the profile
// summary. Both inputs are optional. It performs no I/O.
func BuildSystemPrompt(p *profile.UserProfile, r *search.Response) string {
	var sb strings.Builder
	sb.WriteString(Role)

	if r != nil && (len(r.Results) > 0 || r.Answer != "") {
		sb.WriteString("\n\nCurrent real-time information from search:\n")
		for i, res := range r.Results {
			if i == MaxSearchResults {
				break
			}
			fmt.Fprintf(&sb, "- %s: %s...\n", res.Title, truncateRunes(res.Content, MaxSnippetChars))
		}
		if r.Answer != "" {
			fmt.Fprintf(&sb, "\nSearch summary: %s\n", r.Answer)
		}
	}

	if summary := profile.Summary(p); summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(summary)
	}

	return sb.String()
}

// Compose builds the chat-completions request: system prompt, the last
// MaxHistoryTurns history messages, then the new user message.
func Compose(model, system string, history []proxy.Message, userMessage string) proxy.ChatRequest {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	msgs := make([]proxy.Message, 0, len(history)+2)
	msgs = append(msgs, proxy.Message{Role: proxy.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, proxy.Message{Role: proxy.RoleUser, Content: userMessage})
	return proxy.NewChatRequest(model, msgs)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func truncateRunes(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
