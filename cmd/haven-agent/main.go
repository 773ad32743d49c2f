package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tuckborough/haven/internal/agent"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/logging"
)

func main() {
	logger := logging.Setup(os.Getenv("HAVEN_LOG_LEVEL"))

	serverURL := os.Getenv("HAVEN_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	token := os.Getenv("HAVEN_TOKEN")
	if token == "" {
		slog.Error("HAVEN_TOKEN is required")
		os.Exit(1)
	}
	statePath := os.Getenv("HAVEN_AGENT_STATE")
	if statePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("resolve home directory", "error", err)
			os.Exit(1)
		}
		statePath = filepath.Join(home, ".haven", "queue.json")
	}
	passphrase := os.Getenv("HAVEN_AGENT_PASSPHRASE")
	if passphrase == "" {
		logger.Warn("HAVEN_AGENT_PASSPHRASE not set, queue state will be stored in plaintext")
	}

	client := agent.NewClient(serverURL, token)
	queue, err := agent.NewQueue(client, agent.NewFileStore(statePath, passphrase), logger.With("component", "queue"))
	if err != nil {
		slog.Error("load queue", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The agent starts regardless of connectivity; queued work waits for the
	// watcher to come up.
	if me, err := client.Me(ctx); err != nil {
		logger.Warn("server not reachable, starting offline", "error", err)
	} else {
		logger.Info("authenticated", "user", me.User.Name, "memberships", len(me.Memberships))
	}

	watcher := agent.NewWatcher(serverURL, token, agent.Hooks{
		OnUp:   func() { queue.SetOnline(true) },
		OnDown: func() { queue.SetOnline(false) },
		OnEvent: func(ev events.Event) {
			logger.Info("event", "type", ev.Type, "household_id", ev.HouseholdID, "entity_id", ev.EntityID)
		},
	}, logger.With("component", "watcher"))

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watcher stopped", "error", err)
			os.Exit(1)
		}
	}
}
