// Command echora-server runs the persistent-channel, voice-enabled
// chat server: REST API, WebSocket event fabric, and SFU signaling
// behind one HTTP listener.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/iohzrd/echora/internal/app"
	"github.com/iohzrd/echora/internal/config"
)

func main() {
	cfg := config.Load(os.Args[1:])

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.Run(ctx); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}
