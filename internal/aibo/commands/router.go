// Package commands provides command parsing and routing for aibo.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	Flags      map[string]string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix. Callers should use errors.Is to distinguish this
// expected case from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Handler handles one command for a sender and returns the reply text.
type Handler func(ctx context.Context, cmd *Command, sender string) (string, error)

// Router routes commands to handlers. Handlers register under the command
// name, or "name.sub" for subcommands; a word after the command name is
// only treated as a subcommand when a "name.sub" handler exists, so
// free-form arguments like URLs are never swallowed.
type Router struct {
	handlers map[string]Handler
	prefix   string
}

// NewRouter creates a new command router.
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Register registers a handler under key ("name" or "name.sub").
func (r *Router) Register(key string, handler Handler) {
	r.handlers[key] = handler
}

// Commands returns the registered handler keys, for help listings.
func (r *Router) Commands() []string {
	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	return keys
}

// Parse parses a message into a command.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(strings.TrimPrefix(text, r.prefix))
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Name:    parts[0],
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: text,
	}
	parts = parts[1:]

	// A subcommand only exists when someone registered it.
	if len(parts) > 0 {
		if _, ok := r.handlers[cmd.Name+"."+parts[0]]; ok {
			cmd.Subcommand = parts[0]
			parts = parts[1:]
		}
	}

	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if !strings.HasPrefix(part, "--") {
			cmd.Args = append(cmd.Args, part)
			continue
		}

		flagName := strings.TrimPrefix(part, "--")
		if name, value, ok := strings.Cut(flagName, "="); ok {
			cmd.Flags[name] = value
			continue
		}
		if i+1 < len(parts) && !strings.HasPrefix(parts[i+1], "--") {
			cmd.Flags[flagName] = parts[i+1]
			i++
		} else {
			cmd.Flags[flagName] = "true"
		}
	}

	return cmd, nil
}

// Route parses and routes a command to its handler.
func (r *Router) Route(ctx context.Context, text, sender string) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	handlerKey := cmd.Name
	if cmd.Subcommand != "" {
		handlerKey = cmd.Name + "." + cmd.Subcommand
	}

	handler, ok := r.handlers[handlerKey]
	if !ok {
		return "", fmt.Errorf("unknown command: %s", handlerKey)
	}
	return handler(ctx, cmd, sender)
}

// GetFlag returns a flag value with a default.
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// HasFlag checks if a flag is present.
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Flags[name]
	return ok
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
