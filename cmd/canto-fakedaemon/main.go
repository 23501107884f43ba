// canto-fakedaemon serves the daemon socket protocol from a sqlite file.
// It exists so the curses front-end can be exercised without a real feed
// daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/glabrego/canto-ng/internal/fakedaemon"
	"github.com/glabrego/canto-ng/internal/logging"
	"github.com/glabrego/canto-ng/internal/storage"
)

type seedStory struct {
	ID    string         `json:"id"`
	Tags  []string       `json:"tags"`
	Attrs map[string]any `json:"attrs"`
}

func main() {
	socket := flag.String("socket", "", "unix socket to listen on")
	dbPath := flag.String("db", ":memory:", "sqlite database path")
	seed := flag.String("seed", "", "JSON file of stories to load at startup")
	level := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	if *socket == "" {
		log.Fatalf("config error: -socket is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(*level)}))

	repo, err := storage.NewRepository(*dbPath)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repo.Init(ctx); err != nil {
		log.Fatalf("storage schema error: %v", err)
	}
	if *seed != "" {
		stories, err := loadSeed(*seed)
		if err != nil {
			log.Fatalf("seed error: %v", err)
		}
		if err := repo.SaveStories(ctx, stories); err != nil {
			log.Fatalf("seed error: %v", err)
		}
		logger.Info("seeded stories", "count", len(stories))
	}

	_ = os.Remove(*socket)
	ln, err := net.Listen("unix", *socket)
	if err != nil {
		log.Fatalf("listen error: %v", err)
	}
	defer os.Remove(*socket)

	logger.Info("serving", "socket", *socket)
	if err := fakedaemon.New(repo, logger).Serve(ctx, ln); err != nil {
		log.Fatalf("serve error: %v", err)
	}
}

func loadSeed(path string) ([]storage.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []seedStory
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	stories := make([]storage.Story, 0, len(raw))
	for _, s := range raw {
		stories = append(stories, storage.Story{ID: s.ID, Tags: s.Tags, Attrs: s.Attrs})
	}
	return stories, nil
}
