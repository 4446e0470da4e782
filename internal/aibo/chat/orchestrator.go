// Package chat drives one exchange per inbound message: resolve the
// conversation key, win the per-conversation lock, rehydrate history,
// call the AI service (tools included), persist the new turns, reply.
// Exchanges for the same conversation are strictly serialized; exchanges
// for different conversations never wait on each other.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aibo-bot/aibo/internal/aibo/history"
	"github.com/aibo-bot/aibo/internal/aibo/llm"
	"github.com/aibo-bot/aibo/internal/aibo/lockreg"
)

// Outcome is the terminal state of one message handling.
type Outcome int

const (
	// Replied: the exchange completed and new history was committed.
	Replied Outcome = iota
	// Busy: the conversation lock was not granted within the timeout.
	// Nothing was called, nothing was written.
	Busy
	// Failed: the AI call or persistence failed. The lock was released
	// and no partial history was committed.
	Failed
)

// Reply is what the orchestrator hands back to the transport layer.
type Reply struct {
	Outcome Outcome
	Text    string
}

// Completer is the external AI completion call. Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, prior []llm.Message, userText string, tools []llm.ToolDef) (*llm.Exchange, error)
}

// ToolProvider supplies the tool definitions for one exchange, with recent
// conversation messages bound as context. Satisfied by *toolset.Toolset.
type ToolProvider interface {
	Tools(recent []llm.Message) ([]llm.ToolDef, error)
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// LockTimeout bounds how long a message waits for its conversation
	// lock before giving up with a busy notice. Defaults to
	// lockreg.DefaultTimeout.
	LockTimeout time.Duration
}

// Orchestrator serializes per-conversation exchanges with the AI service.
type Orchestrator struct {
	locks       *lockreg.Registry
	store       *history.Store
	ai          Completer
	tools       ToolProvider
	lockTimeout time.Duration
}

// New creates an Orchestrator. tools may be nil when no tools are offered.
func New(store *history.Store, ai Completer, tools ToolProvider, cfg Config) *Orchestrator {
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = lockreg.DefaultTimeout
	}
	return &Orchestrator{
		locks:       lockreg.New(),
		store:       store,
		ai:          ai,
		tools:       tools,
		lockTimeout: timeout,
	}
}

// ConversationKey derives the stable history key for a sender. One sender,
// one conversation.
func ConversationKey(sender string) string {
	return "history/" + sender
}

// Handle runs one exchange for an inbound message. Exactly one of the
// three outcomes is returned; an error accompanies only Failed and
// carries the cause for logging. The Reply text is already user-safe.
func (o *Orchestrator) Handle(ctx context.Context, sender, text string) (Reply, error) {
	key := ConversationKey(sender)

	if !o.locks.Acquire(ctx, key, o.lockTimeout) {
		slog.Info("conversation busy", "key", key, "timeout", o.lockTimeout)
		return Reply{
			Outcome: Busy,
			Text: fmt.Sprintf("Still busy with your previous message — gave up waiting after %s. Try again shortly.",
				o.lockTimeout),
		}, nil
	}
	defer o.locks.Release(key)

	mutation, err := o.store.Begin(key)
	if err != nil {
		return Reply{Outcome: Failed, Text: failureNotice}, fmt.Errorf("chat: load history: %w", err)
	}
	h := mutation.History()
	prior := toLLMMessages(h)

	var tools []llm.ToolDef
	if o.tools != nil {
		tools, err = o.tools.Tools(prior)
		if err != nil {
			return Reply{Outcome: Failed, Text: failureNotice}, fmt.Errorf("chat: build tools: %w", err)
		}
	}

	// Single attempt: a failed completion is reported, never retried.
	exchange, err := o.ai.Complete(ctx, prior, text, tools)
	if err != nil {
		return Reply{Outcome: Failed, Text: failureNotice}, fmt.Errorf("chat: completion: %w", err)
	}

	appendTurns(h, exchange)
	if err := mutation.Commit(); err != nil {
		return Reply{Outcome: Failed, Text: failureNotice}, fmt.Errorf("chat: persist history: %w", err)
	}

	return Reply{Outcome: Replied, Text: exchange.Reply}, nil
}

// History returns the stored conversation for sender.
func (o *Orchestrator) History(sender string) (*history.History, error) {
	return o.store.Get(ConversationKey(sender))
}

// ClearHistory deletes the stored conversation for sender. Deliberately
// unlocked: an explicit administrative action that may race an in-flight
// exchange.
func (o *Orchestrator) ClearHistory(sender string) error {
	return o.store.Delete(ConversationKey(sender))
}

// PopLast removes up to n most recent messages from sender's conversation,
// returning the removed messages newest first. Unlocked, same caveat as
// ClearHistory.
func (o *Orchestrator) PopLast(sender string, n int) ([]history.Message, error) {
	return o.store.PopLast(ConversationKey(sender), n)
}

const failureNotice = "Something went wrong talking to the AI service. Your message was not recorded — please try again."

// toLLMMessages converts stored history into prompt messages. Tool
// transcript turns are kept for the record but excluded from the prompt:
// the assistant turn that followed them already folded in their output.
func toLLMMessages(h *history.History) []llm.Message {
	msgs := make([]llm.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		if m.Role == history.RoleTool {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// appendTurns writes the exchange transcript into the history handle. The
// final assistant turn carries the exchange's reported token usage.
func appendTurns(h *history.History, ex *llm.Exchange) {
	for i, turn := range ex.Turns {
		last := i == len(ex.Turns)-1
		if last && turn.Role == history.RoleAssistant && ex.TotalTokens > 0 {
			h.AppendWithUsage(turn.Role, turn.Content, ex.TotalTokens)
			continue
		}
		h.Append(turn.Role, turn.Content)
	}
}
