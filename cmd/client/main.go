package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/client"
	"github.com/technologicalMayhem/chat-app/internal/config"
	"github.com/technologicalMayhem/chat-app/internal/observ"
	"github.com/technologicalMayhem/chat-app/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	server := config.GetEnv("CHAT_SERVER", "http://localhost:8081")

	// The TUI owns stdout, so logs go to a file or nowhere.
	logger := zap.NewNop()
	if path := config.GetEnv("CHAT_CLIENT_LOG", ""); path != "" {
		fileLogger, err := observ.NewFileLogger(path, config.GetEnv("LOG_LEVEL", "debug"))
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer fileLogger.Sync()
		logger = fileLogger
	}

	pollTimeout, err := time.ParseDuration(config.GetEnv("CHAT_POLL_TIMEOUT", "25s"))
	if err != nil {
		return fmt.Errorf("parse CHAT_POLL_TIMEOUT: %w", err)
	}

	apiClient := client.NewAPI(server)
	manager := client.NewManager(apiClient, pollTimeout, logger)
	defer manager.CloseAll()

	p := tea.NewProgram(tui.New(manager), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
