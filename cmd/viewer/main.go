package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sharetube/watchparty/internal/viewer"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/playersync"
)

func main() {
	cfg := viewer.DefaultConfig()

	pflag.StringVar(&cfg.ServerURL, "server", "ws://localhost:80", "Server base url")
	pflag.StringVar(&cfg.Token, "token", "", "Auth token")
	pflag.StringVar(&cfg.RoomId, "room", "", "Room to join")
	pflag.StringVar(&cfg.UserId, "user", "", "User id, ignored when the token carries one")
	pflag.StringVar(&cfg.DisplayName, "name", "", "Display name")
	pflag.BoolVar(&cfg.Autoplay, "autoplay", false, "Start playback when hosting")
	pflag.BoolVar(&cfg.Sync.AdaptiveLatency, "adaptive-latency", false, "Derive the latency buffer from ping round trips")
	pflag.DurationVar(&cfg.Sync.LatencyBuffer, "latency-buffer", cfg.Sync.LatencyBuffer, "Fixed latency buffer")
	logLevel := pflag.String("log-level", "INFO", "Logging level")
	pflag.Parse()

	if cfg.RoomId == "" {
		log.Fatal("room is required")
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(strings.ToUpper(*logLevel))); err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logger := slog.New(&ctxlogger.ContextHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := viewer.New(cfg, playersync.NewSimulatedPlayer(nil), logger)
	if err := v.Run(ctx); err != nil && !errors.Is(err, viewer.ErrPartyEnded) {
		log.Fatal(err)
	}
}
