// Package toolset implements the tools the AI service may invoke
// mid-exchange. The flagship tool, summarize_url, resolves a URL from
// free text, fetches and sanitizes the page, and produces a bounded
// summary through an isolated AI sub-call whose state is discarded when
// the tool returns.
//
// Every failure inside the pipeline is a Result value carrying a
// human-readable explanation — never an error — so the parent exchange
// can always turn it into an ordinary assistant reply.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aibo-bot/aibo/internal/aibo/llm"
)

// summaryWordLimit bounds the summarization stage output.
const summaryWordLimit = 100

// recentContextMessages is how many trailing conversation messages are
// offered to the extraction stage so pronoun-style references ("that
// article") can resolve to a previously mentioned URL.
const recentContextMessages = 6

// Extractor is the structured-extraction sub-call the pipeline runs
// against. Satisfied by *llm.Client.
type Extractor interface {
	Extract(ctx context.Context, instruction, input string) (*llm.Extracted, error)
}

// Result is the outcome of a tool invocation. Context always holds
// something presentable: the summary on success, or the failure
// explanation. Title and URL are empty on failure.
type Result struct {
	Context string `json:"context"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Toolset holds the closed set of tools offered to the AI service.
type Toolset struct {
	ai      Extractor
	fetcher Fetcher
}

// New creates a Toolset. The extractor shares the parent session's model
// and parameters but none of its history.
func New(ai Extractor, fetcher Fetcher) *Toolset {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	return &Toolset{ai: ai, fetcher: fetcher}
}

const extractInstruction = `Extract a single URL from the user's text.
The text may refer to a previously mentioned URL ("that article", "the page above");
use the conversation context, when present, to resolve such references.
Respond with a JSON object {"url": "<the URL>", "summary": ""}.
If no URL can be resolved, respond with an empty JSON object {}.`

func summarizeInstruction(query string) string {
	if query == "" {
		return fmt.Sprintf(`Summarize the following text in at most %d words.
Respond with a JSON object {"summary": "<the summary>"}.`, summaryWordLimit)
	}
	return fmt.Sprintf(`Answer the following question about the text, in at most %d words: %s
Respond with a JSON object {"summary": "<the answer>"}.`, summaryWordLimit, query)
}

// SummarizeURL resolves a URL from query, fetches and sanitizes the page,
// and summarizes its content. recent supplies trailing conversation
// messages as extraction context; it may be nil.
func (t *Toolset) SummarizeURL(ctx context.Context, query string, recent []llm.Message) Result {
	session := uuid.NewString()
	log := slog.With("tool", "summarize_url", "session", session)

	// Extraction stage: resolve a URL from free text.
	input := query
	if len(recent) > 0 {
		var b strings.Builder
		b.WriteString("Conversation context:\n")
		start := len(recent) - recentContextMessages
		if start < 0 {
			start = 0
		}
		for _, m := range recent[start:] {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\nText: ")
		b.WriteString(query)
		input = b.String()
	}

	extracted, err := t.ai.Extract(ctx, extractInstruction, input)
	if err != nil {
		log.Warn("url extraction failed", "err", err)
		return Result{Context: fmt.Sprintf("Failed to extract URL from %q.", query)}
	}
	if !extracted.HasURL() {
		log.Debug("no url resolved from query")
		return Result{Context: fmt.Sprintf("Failed to extract URL from %q.", query)}
	}
	pageURL := strings.TrimSpace(*extracted.URL)
	log.Debug("url resolved", "url", pageURL)

	return t.summarize(ctx, log, pageURL, "")
}

// Summarize fetches pageURL directly and answers query about its content
// (or produces the default bounded summary when query is empty). Used by
// the !summarize command, which skips the extraction stage because the
// user already supplied the URL.
func (t *Toolset) Summarize(ctx context.Context, pageURL, query string) Result {
	session := uuid.NewString()
	log := slog.With("tool", "summarize", "session", session)
	return t.summarize(ctx, log, pageURL, query)
}

// summarize runs the fetch, sanitize, and summarization stages.
func (t *Toolset) summarize(ctx context.Context, log *slog.Logger, pageURL, query string) Result {
	// Fetch stage: one attempt, no retries.
	raw, err := t.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Warn("fetch failed", "url", pageURL, "err", err)
		return Result{Context: fmt.Sprintf("Failed to fetch %s.", pageURL)}
	}

	// Sanitize stage: strip markup, recover the title separately.
	text, title, err := sanitize(raw)
	if err != nil {
		log.Warn("sanitize failed", "url", pageURL, "err", err)
		return Result{Context: fmt.Sprintf("Failed to extract content from %s.", pageURL)}
	}
	if text == "" {
		// Nothing to summarize; do not spend an AI call on it.
		log.Debug("sanitized content empty", "url", pageURL)
		return Result{Context: fmt.Sprintf("Failed to extract content from %s.", pageURL)}
	}

	// Summarization stage.
	summarized, err := t.ai.Extract(ctx, summarizeInstruction(query), text)
	if err != nil {
		log.Warn("summarization failed", "url", pageURL, "err", err)
		return Result{Context: fmt.Sprintf("Failed to summarize %s.", pageURL)}
	}
	if !summarized.HasSummary() {
		return Result{Context: fmt.Sprintf("Failed to summarize %s.", pageURL)}
	}

	log.Debug("summary produced", "url", pageURL, "title", title)
	return Result{
		Context: strings.TrimSpace(*summarized.Summary),
		Title:   title,
		URL:     pageURL,
	}
}

// Tools returns the tool definitions for one exchange, with the given
// recent conversation messages bound as extraction context.
func (t *Toolset) Tools(recent []llm.Message) ([]llm.ToolDef, error) {
	summarizeURL, err := llm.NewToolDef(
		"summarize_url",
		"Summarize webpage content. Input is the user's request text containing or referring to a URL.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The user's request text, containing or referring to the URL to summarize.",
				},
			},
			"required": []any{"query"},
		},
		func(ctx context.Context, args json.RawMessage) (string, error) {
			var parsed struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &parsed); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			result := t.SummarizeURL(ctx, parsed.Query, recent)
			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("encode result: %w", err)
			}
			return string(out), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return []llm.ToolDef{summarizeURL}, nil
}
