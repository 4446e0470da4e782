// Package app wires all aibo subsystems and implements the message loop:
// Matrix message received → command routing or chat exchange → reply.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/aibo-bot/aibo/common/version"
	"github.com/aibo-bot/aibo/internal/aibo/chat"
	"github.com/aibo-bot/aibo/internal/aibo/commands"
	"github.com/aibo-bot/aibo/internal/aibo/config"
	"github.com/aibo-bot/aibo/internal/aibo/history"
	"github.com/aibo-bot/aibo/internal/aibo/linkding"
	"github.com/aibo-bot/aibo/internal/aibo/llm"
	"github.com/aibo-bot/aibo/internal/aibo/matrix"
	"github.com/aibo-bot/aibo/internal/aibo/store"
	"github.com/aibo-bot/aibo/internal/aibo/toolset"
)

// typingTimeout caps how long a single typing notification stays visible.
const typingTimeout = 30 * time.Second

// transport is the Matrix surface the message loop uses. Satisfied by
// *matrix.Client.
type transport interface {
	Start(ctx context.Context, handler matrix.MessageHandler) error
	Stop()
	SendFormattedMessage(ctx context.Context, roomID, html, plaintext string) error
	SendNotice(ctx context.Context, roomID, message string) error
	SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error
}

// App is the main aibo application.
type App struct {
	cfg          *config.Config
	db           *store.Store
	matrixCli    transport
	orchestrator *chat.Orchestrator
	router       *commands.Router
}

// New creates and initialises all aibo subsystems. It does NOT start any
// goroutines; call Run() for that.
func New(cfg *config.Config) (*App, error) {
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ai := llm.New(llm.Config{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.OpenAI.Model,
		Temperature:   cfg.OpenAI.Temperature,
		Timeout:       time.Duration(cfg.OpenAI.Timeout),
		MaxToolRounds: cfg.OpenAI.MaxToolRounds,
	})

	tools := toolset.New(ai, toolset.NewHTTPFetcher())

	orchestrator := chat.New(history.NewStore(db.DB()), ai, tools, chat.Config{
		LockTimeout: time.Duration(cfg.LockTimeout),
	})

	matrixCli, err := matrix.New(&matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		Rooms:       cfg.Matrix.Rooms,
		DB:          db.DB(),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init matrix: %w", err)
	}

	// The bookmark integration only activates with working credentials, so
	// a bad token surfaces at startup instead of on the first !bookmarks.
	var bookmarks commands.BookmarkLister
	if cfg.LinkdingEnabled() {
		ldClient := linkding.NewClient(cfg.Linkding.URL, cfg.Linkding.Token)
		checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ldClient.CheckProfile(checkCtx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("linkding activation: %w", err)
		}
		bookmarks = linkding.NewService(ldClient, db)
		slog.Info("Linkding integration active", "url", cfg.Linkding.URL)
	}

	router := commands.NewRouter("!")
	commands.NewHandlers(orchestrator, tools, bookmarks).RegisterAll(router)

	return &App{
		cfg:          cfg,
		db:           db,
		matrixCli:    matrixCli,
		orchestrator: orchestrator,
		router:       router,
	}, nil
}

// Run starts the Matrix sync loop and blocks until a shutdown signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.matrixCli.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("start matrix: %w", err)
	}

	slog.Info("aibo started",
		"user", a.cfg.Matrix.UserID,
		"rooms", len(a.cfg.Matrix.Rooms),
		"version", version.Version,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("received shutdown signal")

	cancel()
	a.Stop()
	return nil
}

// Stop shuts down all subsystems cleanly.
func (a *App) Stop() {
	a.matrixCli.Stop()
	a.db.Close()
}

// handleMessage is called by the Matrix client for every incoming text
// message that passed the room and sender filters. The sync loop invokes
// it inline, so each message is handed off to its own goroutine: a slow
// exchange must never stall the sync loop or an unrelated conversation.
// Per-conversation serialization is the orchestrator's job.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}
	go a.dispatch(ctx, msgContent.Body, evt.RoomID.String(), evt.Sender.String())
}

// dispatch routes one message to a command handler or a chat exchange.
func (a *App) dispatch(ctx context.Context, text, roomID, sender string) {
	response, err := a.router.Route(ctx, text, sender)
	if err != nil {
		if errors.Is(err, commands.ErrNotACommand) {
			if chatText, ok := chatTrigger(text); ok {
				a.runExchange(ctx, roomID, sender, chatText)
			}
			// Ordinary room chatter is ignored silently.
			return
		}
		if sendErr := a.matrixCli.SendNotice(ctx, roomID, fmt.Sprintf("Error: %s", err)); sendErr != nil {
			slog.Error("failed to send command error", "room", roomID, "err", sendErr)
		}
		return
	}

	if response != "" {
		a.sendMarkdown(ctx, roomID, response)
	}
}

// runExchange drives one chat exchange through the orchestrator, keeping
// the typing indicator up while the AI call is in flight.
func (a *App) runExchange(ctx context.Context, roomID, sender, text string) {
	if err := a.matrixCli.SetTyping(ctx, roomID, true, typingTimeout); err != nil {
		slog.Debug("could not set typing indicator", "room", roomID, "err", err)
	}
	defer func() {
		if err := a.matrixCli.SetTyping(ctx, roomID, false, 0); err != nil {
			slog.Debug("could not clear typing indicator", "room", roomID, "err", err)
		}
	}()

	reply, err := a.orchestrator.Handle(ctx, sender, text)
	switch reply.Outcome {
	case chat.Replied:
		a.sendMarkdown(ctx, roomID, reply.Text)
	case chat.Busy:
		if sendErr := a.matrixCli.SendNotice(ctx, roomID, reply.Text); sendErr != nil {
			slog.Error("failed to send busy notice", "room", roomID, "err", sendErr)
		}
	case chat.Failed:
		slog.Error("exchange failed", "sender", sender, "err", err)
		if sendErr := a.matrixCli.SendNotice(ctx, roomID, reply.Text); sendErr != nil {
			slog.Error("failed to send failure notice", "room", roomID, "err", sendErr)
		}
	}
}

// sendMarkdown sends text with an HTML rendering so Matrix clients that
// support formatted messages show bold and code spans properly.
func (a *App) sendMarkdown(ctx context.Context, roomID, text string) {
	if err := a.matrixCli.SendFormattedMessage(ctx, roomID, markdownToHTML(text), text); err != nil {
		slog.Error("failed to send response", "room", roomID, "err", err)
	}
}

// chatTrigger reports whether text starts a chat exchange: a leading "."
// followed by actual content.
func chatTrigger(text string) (string, bool) {
	if len(text) < 2 || text[0] != '.' {
		return "", false
	}
	return text[1:], true
}
