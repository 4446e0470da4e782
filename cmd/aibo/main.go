// Aibo is a Matrix chat bot backed by an OpenAI-compatible completion
// service, with per-sender conversation history and a web summarization
// tool.
//
// Configuration is loaded from an optional YAML file (AIBO_CONFIG) with
// environment variable overrides.
//
// Required settings:
//
//	MATRIX_HOMESERVER     - Matrix homeserver URL (e.g. "https://matrix.org")
//	MATRIX_USER_ID        - bot's Matrix ID (e.g. "@aibo:matrix.org")
//	MATRIX_ACCESS_TOKEN   - bot's Matrix access token
//	MATRIX_ROOMS          - comma-separated room IDs to serve
//	OPENAI_API_KEY        - API key for the completion service
//
// Optional settings:
//
//	AIBO_CONFIG           - path to a YAML config file
//	DATABASE_PATH         - path to the SQLite database (default: ./aibo.db)
//	OPENAI_BASE_URL       - override the API base URL (e.g. for Ollama)
//	OPENAI_MODEL          - model name (default: gpt-4o-mini)
//	CHAT_LOCK_TIMEOUT     - per-conversation lock wait (e.g. "10s")
//	LINKDING_URL          - Linkding server URL (enables bookmark commands)
//	LINKDING_TOKEN        - Linkding API token
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
package main

import (
	"fmt"
	"os"

	"github.com/aibo-bot/aibo/common/environment"
	"github.com/aibo-bot/aibo/common/version"
	"github.com/aibo-bot/aibo/internal/aibo/app"
	"github.com/aibo-bot/aibo/internal/aibo/config"
)

func main() {
	fmt.Printf("aibo %s\n\n", version.Info())

	cfg, err := config.Load(environment.StringOr("AIBO_CONFIG", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	aibo, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize aibo: %v\n", err)
		os.Exit(1)
	}

	if err := aibo.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running aibo: %v\n", err)
		os.Exit(1)
	}
}
