package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aibo-bot/aibo/common/version"
	"github.com/aibo-bot/aibo/internal/aibo/history"
	"github.com/aibo-bot/aibo/internal/aibo/linkding"
	"github.com/aibo-bot/aibo/internal/aibo/toolset"
)

// defaultSummarizeQuery is used when !summarize gets no custom query.
const defaultSummarizeQuery = "What's summary of this text collection?"

// Conversations is the history administration surface of the chat
// orchestrator.
type Conversations interface {
	History(sender string) (*history.History, error)
	ClearHistory(sender string) error
	PopLast(sender string, n int) ([]history.Message, error)
}

// Summarizer runs the page summarization pipeline directly.
type Summarizer interface {
	Summarize(ctx context.Context, pageURL, query string) toolset.Result
}

// BookmarkLister serves bookmark listings. Nil when Linkding is not
// configured.
type BookmarkLister interface {
	Bookmarks(ctx context.Context, cached bool) ([]linkding.Bookmark, error)
	Random(ctx context.Context, n int, cached, reset bool) ([]linkding.Bookmark, error)
}

// Handlers holds all command handlers and their dependencies.
type Handlers struct {
	conversations Conversations
	summarizer    Summarizer
	bookmarks     BookmarkLister
}

// NewHandlers creates a Handlers instance. bookmarks may be nil.
func NewHandlers(conversations Conversations, summarizer Summarizer, bookmarks BookmarkLister) *Handlers {
	return &Handlers{
		conversations: conversations,
		summarizer:    summarizer,
		bookmarks:     bookmarks,
	}
}

// RegisterAll wires every handler into the router.
func (h *Handlers) RegisterAll(r *Router) {
	r.Register("help", h.HandleHelp)
	r.Register("ping", h.HandlePing)
	r.Register("version", h.HandleVersion)
	r.Register("history", h.HandleHistory)
	r.Register("history.clear", h.HandleHistoryClear)
	r.Register("history.pop", h.HandleHistoryPop)
	r.Register("summarize", h.HandleSummarize)
	if h.bookmarks != nil {
		r.Register("bookmarks", h.HandleBookmarks)
		r.Register("bookmarks.random", h.HandleBookmarksRandom)
	}
}

// HandleHelp shows available commands.
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, sender string) (string, error) {
	help := `**aibo**

Start a free-form chat by prefixing a message with "." (e.g. ".what's the weather like on Mars?").

**Commands:**
• !help - Show this help message
• !ping - Health check
• !version - Show version information
• !history - Show your chat history
• !history clear - Clear your chat history
• !history pop <n> - Remove the last n messages from your chat history
• !summarize <url> [query] - Summarize a webpage, optionally answering a custom query
`
	if h.bookmarks != nil {
		help += `• !bookmarks [--cached=false] - List bookmarks
• !bookmarks random <n> [--cached=false] [--reset] - Show n random unseen bookmarks
`
	}
	return help, nil
}

// HandlePing responds with a health check.
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, sender string) (string, error) {
	return "pong", nil
}

// HandleVersion shows version information.
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, sender string) (string, error) {
	return fmt.Sprintf("**aibo**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandleHistory shows the sender's stored conversation.
func (h *Handlers) HandleHistory(ctx context.Context, cmd *Command, sender string) (string, error) {
	hist, err := h.conversations.History(sender)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if hist.Len() == 0 {
		return "*empty*", nil
	}

	var sb strings.Builder
	for _, m := range hist.Messages {
		fmt.Fprintf(&sb, "* [%s] %s\n", m.Role, m.Content)
	}
	if tokens, ok := hist.LastUsage(); ok {
		fmt.Fprintf(&sb, "\nLast exchange used %d tokens.", tokens)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleHistoryClear deletes the sender's stored conversation.
func (h *Handlers) HandleHistoryClear(ctx context.Context, cmd *Command, sender string) (string, error) {
	if err := h.conversations.ClearHistory(sender); err != nil {
		return "", fmt.Errorf("clear history: %w", err)
	}
	return "Chat history cleared.", nil
}

// HandleHistoryPop removes the last n messages from the sender's history.
func (h *Handlers) HandleHistoryPop(ctx context.Context, cmd *Command, sender string) (string, error) {
	arg, ok := cmd.GetArg(0)
	if !ok {
		return "", fmt.Errorf("usage: !history pop <n>")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("n must be a positive number, got %q", arg)
	}

	removed, err := h.conversations.PopLast(sender, n)
	if err != nil {
		return "", fmt.Errorf("pop history: %w", err)
	}
	if len(removed) == 0 {
		return "*empty*", nil
	}

	var sb strings.Builder
	for _, m := range removed {
		fmt.Fprintf(&sb, "Removed: [%s] %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HandleSummarize runs the summarization pipeline on a URL.
func (h *Handlers) HandleSummarize(ctx context.Context, cmd *Command, sender string) (string, error) {
	pageURL, ok := cmd.GetArg(0)
	if !ok {
		return "", fmt.Errorf("usage: !summarize <url> [query]")
	}
	query := defaultSummarizeQuery
	if len(cmd.Args) > 1 {
		query = strings.Join(cmd.Args[1:], " ")
	}

	result := h.summarizer.Summarize(ctx, pageURL, query)
	if result.Title != "" {
		return fmt.Sprintf("**%s**\n%s", result.Title, result.Context), nil
	}
	return result.Context, nil
}

// HandleBookmarks lists all bookmarks.
func (h *Handlers) HandleBookmarks(ctx context.Context, cmd *Command, sender string) (string, error) {
	cached := parseBoolFlag(cmd, "cached", true)
	bookmarks, err := h.bookmarks.Bookmarks(ctx, cached)
	if err != nil {
		return "", fmt.Errorf("list bookmarks: %w", err)
	}
	return renderBookmarks(bookmarks), nil
}

// HandleBookmarksRandom shows n random bookmarks that were not shown
// before.
func (h *Handlers) HandleBookmarksRandom(ctx context.Context, cmd *Command, sender string) (string, error) {
	arg, ok := cmd.GetArg(0)
	if !ok {
		return "", fmt.Errorf("usage: !bookmarks random <n>")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("n must be a positive number, got %q", arg)
	}

	cached := parseBoolFlag(cmd, "cached", true)
	reset := parseBoolFlag(cmd, "reset", false)
	bookmarks, err := h.bookmarks.Random(ctx, n, cached, reset)
	if err != nil {
		return "", fmt.Errorf("random bookmarks: %w", err)
	}
	return renderBookmarks(bookmarks), nil
}

func renderBookmarks(bookmarks []linkding.Bookmark) string {
	if len(bookmarks) == 0 {
		return "*empty*"
	}
	lines := make([]string, 0, len(bookmarks))
	for _, b := range bookmarks {
		lines = append(lines, b.Line())
	}
	return strings.Join(lines, "\n")
}

func parseBoolFlag(cmd *Command, name string, defaultValue bool) bool {
	raw := cmd.GetFlag(name, strconv.FormatBool(defaultValue))
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
