package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant *chat.Assistant
	Sessions  *chat.Sessions
	Profile   *profile.Manager
	Knowledge *knowledge.Base
	Store     *storage.Store // optional; enables transcripts and the recent interactions resource
	Logger    *slog.Logger
	Clock     clockwork.Clock
}

func (d MCPDeps) recorder() turnRecorder {
	return turnRecorder{store: d.Store, logger: d.Logger, clock: d.Clock}
}

// NewMCPServer creates an MCP server exposing the assistant, checklists, and
// profile to MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.Default()
	}

	s := server.NewMCPServer(
		"hdr",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hdr: Houston disaster preparedness assistant with checklists, contacts, and live guidance."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the disaster preparedness assistant a question. The result ends with the session_id to pass on follow-up questions."),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Optional conversation ID to continue")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("checklist",
			mcp.WithDescription("Return the preparedness checklist for a disaster type, personalized for the saved profile."),
			mcp.WithString("kind", mcp.Description("Disaster type: "+strings.Join(deps.Knowledge.Kinds(), ", ")), mcp.Required()),
		),
		mcpChecklist(deps),
	)

	s.AddTool(
		mcp.NewTool("set_profile_field",
			mcp.WithDescription("Update one field of the resident profile."),
			mcp.WithString("field", mcp.Description("Profile field: "+strings.Join(profile.Fields(), ", ")), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to set"), mcp.Required()),
		),
		mcpSetProfileField(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hdr://profile",
			"Resident Profile",
			mcp.WithResourceDescription("Saved resident profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hdr://contacts",
			"Emergency Contacts",
			mcp.WithResourceDescription("Houston-area emergency phone numbers"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceContacts(deps),
	)

	if deps.Store != nil {
		s.AddResource(
			mcp.NewResource(
				"hdr://recent",
				"Recent Questions",
				mcp.WithResourceDescription("Last 10 recorded assistant interactions"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcpError("message is required"), nil
		}

		var c chat.Context
		if deps.Profile != nil {
			if p, err := deps.Profile.Get(); err == nil {
				c.UserProfile = p
			}
		}

		if deps.Sessions == nil {
			reply := deps.Assistant.Respond(ctx, nil, message, c)
			return mcpText(reply.Message), nil
		}

		sess, release, err := deps.Sessions.Acquire(req.GetString("session_id", ""))
		if errors.Is(err, chat.ErrBusy) {
			return mcpError("a reply is already in progress for this session"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("session error: %v", err)), nil
		}
		defer release()

		before := sess.History.Len()
		reply := deps.Assistant.Respond(ctx, sess.History, message, c)
		deps.recorder().record(sess, before, message, reply)

		result := mcpText(reply.Message)
		result.Content = append(result.Content, mcp.TextContent{Type: "text", Text: "session_id: " + sess.ID})
		return result, nil
	}
}

func mcpChecklist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}

		var p *profile.UserProfile
		if deps.Profile != nil {
			p, _ = deps.Profile.Get()
		}
		items, err := deps.Knowledge.PersonalizedChecklist(strings.ToLower(kind), p)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		var sb strings.Builder
		for _, item := range items {
			sb.WriteString("- [ ] ")
			sb.WriteString(item)
			sb.WriteByte('\n')
		}
		return mcpText(sb.String()), nil
	}
}

func mcpSetProfileField(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Profile == nil {
			return mcpError("profile storage is not available"), nil
		}
		field, err := req.RequireString("field")
		if err != nil {
			return mcpError("field is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Profile.SetField(field, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set profile field: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", field, value)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var p *profile.UserProfile
		if deps.Profile != nil {
			var err error
			if p, err = deps.Profile.Get(); err != nil {
				return nil, fmt.Errorf("failed to get profile: %w", err)
			}
		}
		return jsonResource(req.Params.URI, p)
	}
}

func mcpResourceContacts(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(req.Params.URI, deps.Knowledge.Contacts())
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Query     string `json:"query"`
			Tier      string `json:"tier"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.UserQuery
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Query:     query,
				Tier:      ix.Tier,
			}
		}
		return jsonResource(req.Params.URI, summaries)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
