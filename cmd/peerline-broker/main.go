package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peerline/peerline/internal/broker"
	"github.com/peerline/peerline/internal/logger"
)

func main() {
	addr := flag.String("addr", ":8787", "listen address for the relay")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.NewLoggerWithLevel(level)

	srv, err := broker.NewServer(broker.Config{Addr: *addr, Logger: log})
	if err != nil {
		log.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Relay stopped", "error", err)
		os.Exit(1)
	}
}
