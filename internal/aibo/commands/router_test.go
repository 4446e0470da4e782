package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aibo-bot/aibo/internal/aibo/commands"
)

func newTestRouter() *commands.Router {
	router := commands.NewRouter("!")
	noop := func(ctx context.Context, cmd *commands.Command, sender string) (string, error) {
		return "", nil
	}
	for _, key := range []string{"help", "ping", "history", "history.clear", "history.pop", "summarize", "bookmarks", "bookmarks.random"} {
		router.Register(key, noop)
	}
	return router
}

func TestParseCommand_Basic(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		input     string
		wantName  string
		wantSub   string
		wantArgs  []string
		wantFlags map[string]string
		wantErr   bool
	}{
		{
			input:    "!help",
			wantName: "help",
		},
		{
			input:    "!history clear",
			wantName: "history",
			wantSub:  "clear",
		},
		{
			input:    "!history pop 3",
			wantName: "history",
			wantSub:  "pop",
			wantArgs: []string{"3"},
		},
		{
			// "https://..." must stay an argument, not become a subcommand.
			input:    "!summarize https://example.com/page what is this about",
			wantName: "summarize",
			wantSub:  "",
			wantArgs: []string{"https://example.com/page", "what", "is", "this", "about"},
		},
		{
			input:     "!bookmarks --cached false",
			wantName:  "bookmarks",
			wantFlags: map[string]string{"cached": "false"},
		},
		{
			input:     "!bookmarks random 3 --cached=false --reset",
			wantName:  "bookmarks",
			wantSub:   "random",
			wantArgs:  []string{"3"},
			wantFlags: map[string]string{"cached": "false", "reset": "true"},
		},
		{
			input:   "not a command",
			wantErr: true,
		},
		{
			input:   "!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := router.Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q): expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.wantName)
			}
			if cmd.Subcommand != tt.wantSub {
				t.Errorf("Subcommand = %q, want %q", cmd.Subcommand, tt.wantSub)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Fatalf("Args = %v, want %v", cmd.Args, tt.wantArgs)
			}
			for i, want := range tt.wantArgs {
				if cmd.Args[i] != want {
					t.Errorf("Args[%d] = %q, want %q", i, cmd.Args[i], want)
				}
			}
			for name, want := range tt.wantFlags {
				if got := cmd.Flags[name]; got != want {
					t.Errorf("Flags[%q] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestParseNotACommandSentinel(t *testing.T) {
	router := newTestRouter()
	_, err := router.Parse("just chatting")
	if !errors.Is(err, commands.ErrNotACommand) {
		t.Errorf("expected ErrNotACommand, got %v", err)
	}
}

func TestRouteUnknownCommand(t *testing.T) {
	router := newTestRouter()
	_, err := router.Route(context.Background(), "!frobnicate", "@alice:test")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRouteDispatchesWithSender(t *testing.T) {
	router := commands.NewRouter("!")
	var gotSender string
	router.Register("ping", func(ctx context.Context, cmd *commands.Command, sender string) (string, error) {
		gotSender = sender
		return "pong", nil
	})

	reply, err := router.Route(context.Background(), "!ping", "@alice:test")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "pong" {
		t.Errorf("reply = %q", reply)
	}
	if gotSender != "@alice:test" {
		t.Errorf("sender = %q", gotSender)
	}
}
