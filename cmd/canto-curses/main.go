package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/canto-ng/internal/app"
	"github.com/glabrego/canto-ng/internal/config"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/tui"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.EnsureDir(); err != nil {
		log.Fatalf("config dir error: %v", err)
	}

	logger, err := logging.Open(cfg.LogPath, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer logger.Close()

	session := app.NewSession(app.Options{Socket: cfg.SocketPath, Logger: logger.Logger})
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	err = session.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("cannot connect to daemon at %s: %v", cfg.SocketPath, err)
	}
	if err := session.Start(); err != nil {
		log.Fatalf("session start error: %v", err)
	}

	model := tui.NewModel(session, tui.Options{
		Logger:           logger,
		ExitTimeout:      cfg.ExitTimeout,
		ReconnectTimeout: cfg.ConnectTimeout,
		TickInterval:     cfg.PingInterval,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
