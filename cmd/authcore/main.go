package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()

	config := NewConfig()
	if err := config.LoadDotEnv(os.Getwd); err != nil {
		slog.Error("can't read .env file", "error", err.Error())
		os.Exit(1)
	}
	if err := config.LoadEnv(os.Getenv); err != nil {
		slog.Error("can't read environment", "error", err.Error())
		os.Exit(1)
	}
	if err := config.ParseFlags(os.Args[1:]); err != nil {
		slog.Error("can't parse flags", "error", err.Error())
		os.Exit(1)
	}

	srv, err := NewServerApp(ctx, config)
	if err != nil {
		slog.Error("can't initialize app", "error", err.Error())
		os.Exit(1)
	}

	// Initialize context that is cancelled on SIGTERM
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		srv.Logger.Warn("Interrupt signal")
		cancel()
	}()

	if err := srv.Run(ctx); err != http.ErrServerClosed {
		srv.Logger.Error("HTTP server error", "error", err.Error())
	}
}
