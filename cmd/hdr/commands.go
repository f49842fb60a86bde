package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/readyhouston/hdr/internal/chat"
	"github.com/readyhouston/hdr/internal/config"
	"github.com/readyhouston/hdr/internal/knowledge"
	"github.com/readyhouston/hdr/internal/observability"
	"github.com/readyhouston/hdr/internal/profile"
	"github.com/readyhouston/hdr/internal/proxy"
	"github.com/readyhouston/hdr/internal/search"
)

// --- ask / chat ---

// newLocalAssistant builds the full tier chain for terminal use: the
// running (or configured) hdr server first, then the LLM directly when a
// key is present, then built-in guidance.
func newLocalAssistant(cfg config.Config, logger *slog.Logger) *chat.Assistant {
	proxyURL := cfg.Chat.ProxyURL
	if proxyURL == "" {
		proxyURL = "http://" + cfg.Addr()
	}
	llm := proxy.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithTimeout(cfg.Chat.Timeout)

	return chat.New(chat.Options{
		Tiers: []chat.Tier{
			chat.NewServerTier(proxyURL, cfg.Chat.Timeout, nil),
			chat.NewDirectTier(llm, cfg.LLM.Model, nil),
		},
		Search: search.NewClient(cfg.Search.APIKey, cfg.Search.BaseURL, 0, logger, nil),
		Logger: logger,
	})
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = "debug"
	}
	return observability.NewLogger(os.Stderr, level, "text")
}

// fetchProfile returns the profile stored by the running server, or nil.
func fetchProfile(ctx context.Context) *profile.UserProfile {
	client, err := newAPIClient()
	if err != nil {
		return nil
	}
	resp, err := client.get(ctx, "/api/profile")
	if err != nil {
		return nil
	}
	var p profile.UserProfile
	if err := decodeJSON(resp, &p); err != nil {
		return nil
	}
	return &p
}

func printReply(w io.Writer, reply chat.Reply, plain bool) {
	fmt.Fprint(w, renderMarkdown(reply.Message, plain))
	if len(reply.Suggestions) > 0 && !plain {
		fmt.Fprintln(w)
		fmt.Fprintln(w, colorize(colorBold, "You might also ask:"))
		for _, s := range reply.Suggestions {
			fmt.Fprintf(w, "  %s %s\n", colorize(colorCyan, "•"), s)
		}
	}
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question.

The reply comes from the hdr server when it is reachable, otherwise from the
LLM directly when MISTRAL_API_KEY is set, otherwise from built-in guidance.

Examples:
  hdr ask "What should I do before a hurricane?"
  hdr ask --plain "Is there flooding on I-10 right now?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		message := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		assistant := newLocalAssistant(cfg, cliLogger(cmd))
		reply := assistant.Respond(ctx, nil, message, chat.Context{UserProfile: fetchProfile(ctx)})

		printReply(cmd.OutOrStdout(), reply, plain)
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			printStatus("Tier", "%s", reply.Tier)
			printStatus("Searched", "%t", reply.Searched)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		assistant := newLocalAssistant(cfg, cliLogger(cmd))
		if !assistant.Init().AI() {
			printWarning("No AI service configured, answers use built-in guidance")
		}
		c := chat.Context{UserProfile: fetchProfile(ctx)}
		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), assistant, c, plain)
	},
}

// runChat reads one message per line until EOF or "exit", keeping the
// conversation history across turns.
func runChat(ctx context.Context, in io.Reader, out io.Writer, a *chat.Assistant, c chat.Context, plain bool) error {
	history := chat.NewHistory(nil)
	sc := bufio.NewScanner(in)

	fmt.Fprintln(out, colorize(colorBold, "Houston disaster readiness assistant. Type \"exit\" to quit."))
	for {
		fmt.Fprint(out, colorize(colorCyan, "> "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply := a.Respond(ctx, history, line, c)
		printReply(out, reply, plain)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, chatCmd} {
		cmd.Flags().Bool("plain", false, "print the raw reply without markdown rendering")
		cmd.Flags().BoolP("verbose", "v", false, "log tier and search activity")
	}
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the resident profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/profile")
		if err != nil {
			return err
		}

		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a profile field",
	Long: fmt.Sprintf(`Set a profile field.

Fields: %s

Examples:
  hdr profile set zipcode 77002
  hdr profile set pets true`, strings.Join(profile.Fields(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/api/profile", map[string]string{field: value})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", field, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- checklist / contacts ---

var checklistCmd = &cobra.Command{
	Use:   "checklist <kind>",
	Short: "Print the preparedness checklist for a disaster type",
	Long: fmt.Sprintf(`Print the preparedness checklist for a disaster type.

The list includes household items for the saved profile when the hdr server
is reachable.

Kinds: %s`, strings.Join(knowledge.Default().Kinds(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kb := knowledge.Default()
		d, ok := kb.Disaster(args[0])
		if !ok {
			return fmt.Errorf("unknown disaster kind %q (known: %s)", args[0], strings.Join(kb.Kinds(), ", "))
		}

		ctx := cmd.Context()
		items, err := kb.PersonalizedChecklist(d.Kind, fetchProfile(ctx))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, colorize(colorBold, d.Name))
		for _, item := range items {
			fmt.Fprintf(out, "  [ ] %s\n", item)
		}
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List Houston-area emergency phone numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, c := range knowledge.Default().Contacts() {
			fmt.Fprintf(out, "  %-32s %s\n", c.Name, colorize(colorBold, c.Number))
		}
		return nil
	},
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect recorded assistant interactions",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"createdAt"`
			UserQuery string `json:"userQuery"`
			Tier      string `json:"tier"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(interactions) == 0 {
			fmt.Fprintln(out, "No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			fmt.Fprintf(out, "%s  %s  %-8s  %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt,
				ix.Tier,
				truncateRunes(ix.UserQuery, 80),
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		secrets := config.SecretStatus(cfg)
		for _, env := range slices.Sorted(maps.Keys(secrets)) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, env), configured(secrets[env]))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
