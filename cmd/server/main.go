package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"runtime"
	"syscall"

	"warlane/server/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML server settings (default game.toml, or $WARLANE_CONFIG)")
	workers := flag.Int("workers", runtime.NumCPU(), "tick worker pool size")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{ConfigPath: *configPath, Workers: *workers}); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
