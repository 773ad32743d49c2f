package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuckborough/haven/internal/database"
	"github.com/tuckborough/haven/internal/logging"
	"github.com/tuckborough/haven/internal/score"
	"github.com/tuckborough/haven/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("HAVEN_LOG_LEVEL"))

	port := os.Getenv("HAVEN_PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("HAVEN_DB_PATH")
	if dbPath == "" {
		dbPath = "haven.db"
	}
	secret := os.Getenv("HAVEN_TOKEN_SECRET")
	if secret == "" {
		slog.Error("HAVEN_TOKEN_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, server.Config{
		TokenSecret: secret,
		TokenIssuer: os.Getenv("HAVEN_TOKEN_ISSUER"),
	}, score.Compute, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("haven listening", "port", port, "db", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
