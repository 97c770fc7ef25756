// Package app wires the whole server: configuration, logging, telemetry,
// the world, the scheduler, the tick loop, and the transport adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warlane/server/internal/config"
	servernet "warlane/server/internal/net"
	"warlane/server/internal/net/ws"
	"warlane/server/internal/sim"
	"warlane/server/internal/systems"
	"warlane/server/internal/telemetry"
	"warlane/server/internal/world"
	"warlane/server/logging"
	loggingsinks "warlane/server/logging/sinks"
)

// Config selects the server settings file; everything else comes from it.
type Config struct {
	ConfigPath string
	Workers    int
}

// Run boots the server and blocks until the context is cancelled or a fatal
// error escalates.
func Run(ctx context.Context, cfg Config) error {
	path := cfg.ConfigPath
	if path == "" {
		path = os.Getenv("WARLANE_CONFIG")
	}
	if path == "" {
		path = "game.toml"
	}
	serverCfg, err := config.LoadServer(path)
	if err != nil {
		return err
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap: %w", err)
	}
	defer zapLogger.Sync()
	fallback := log.New(os.Stderr, "[warlane] ", log.LstdFlags)
	telemetryLogger := telemetry.WrapLogger(fallback)

	// Gameplay event pipeline: console plus optional json and zap sinks.
	logCfg := logging.DefaultConfig()
	logCfg.EnabledSinks = serverCfg.LogSinks
	sinks := map[string]logging.Sink{
		"console": loggingsinks.NewConsole(os.Stdout, logCfg.Console),
		"zap":     loggingsinks.NewZap(zapLogger),
	}
	if serverCfg.LogFile != "" {
		file, err := os.OpenFile(serverCfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer file.Close()
		sinks["json"] = loggingsinks.NewJSON(file, logCfg.JSON.FlushInterval)
	}
	router, err := logging.NewRouter(logCfg, logging.SystemClock{}, fallback, sinks)
	if err != nil {
		return fmt.Errorf("logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	// Static data: abilities first, then archetypes referencing them, then
	// the map referencing archetypes. All fatal on error.
	abilities, err := config.LoadAbilities(serverCfg.AbilityFile)
	if err != nil {
		return err
	}
	archetypes, err := config.LoadEntities(serverCfg.EntityFile, abilities)
	if err != nil {
		return err
	}
	static, err := config.LoadMap(serverCfg.MapFile, archetypes)
	if err != nil {
		return err
	}

	metrics := telemetry.NewCounters()
	w := world.New(world.Config{Seed: serverCfg.Seed}, static, archetypes, abilities, world.Deps{
		Publisher: router,
		Metrics:   metrics,
		Logger:    telemetryLogger,
	})

	sched := sim.NewScheduler(cfg.Workers)
	if err := systems.RegisterAll(sched); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	zapLogger.Info("scheduler built", zap.Any("stages", sched.Stages()))

	spectators := ws.NewGateway(telemetryLogger)

	var broker *servernet.Broker
	loop := sim.NewLoop(w, sched, sim.LoopConfig{TickRate: serverCfg.TickRate}, sim.Hooks{
		AfterTick: func(w *world.World) {
			var subscribed []string
			if broker != nil {
				subscribed = broker.Players()
			}
			batches, broadcast := servernet.BuildBatches(w, subscribed)
			if broker != nil {
				broker.PublishBatches(batches, broadcast)
			}
			if len(broadcast.Events) > 0 {
				spectators.Broadcast(broadcast)
			}
		},
		Shutdown: func(w *world.World) {
			_, broadcast := servernet.BuildBatches(w, nil)
			if broker != nil {
				broker.PublishBatches(nil, broadcast)
			}
			spectators.Broadcast(broadcast)
			zapLogger.Info("final snapshot published",
				zap.Uint64("tick", w.Clock.Tick),
				zap.Int("entities", w.LiveCount()))
		},
	})

	broker = servernet.NewBroker(servernet.BrokerConfig{
		URL:         serverCfg.BrokerURL(),
		ClientID:    serverCfg.ClientID,
		Namespace:   serverCfg.Namespace,
		DefaultHero: serverCfg.DefaultHero,
		MaxPlayers:  serverCfg.MaxPlayers,
	}, loop, router, telemetryLogger, metrics)

	if err := w.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	zapLogger.Info("world bootstrapped",
		zap.String("seed", w.Seed()),
		zap.Int("entities", w.LiveCount()),
		zap.Int("abilities", abilities.Len()))

	if err := broker.Connect(ctx); err != nil {
		return err
	}
	defer broker.Close()

	httpServer := &nethttp.Server{
		Addr: serverCfg.HTTPAddr,
		Handler: servernet.NewHTTPHandler(servernet.HTTPConfig{
			Loop:      loop,
			Metrics:   metrics,
			Spectator: spectators,
		}),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(groupCtx)
	})
	group.Go(func() error {
		err := httpServer.ListenAndServe()
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		spectators.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
