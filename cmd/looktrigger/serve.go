package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/hub"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
	"github.com/teslashibe/go-looktrigger/pkg/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP/WebSocket server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default :8080, or :$PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	log.Info("starting looktrigger", "version", version, "addr", cfg.Server.Addr,
		"tick", cfg.Tick.Interval, "debug", cfg.Debug.Enabled)

	events := hub.New("events")
	sink := web.NewSink(events)
	eng := engine.New(cfg.EngineOptions(), scene.New(), sink)

	ids, err := cfg.Scene.Apply(eng)
	if err != nil {
		return fmt.Errorf("build scene: %w", err)
	}
	log.Info("scene loaded", "targets", len(cfg.Scene.Targets),
		"volumes", len(cfg.Scene.Volumes), "monitors", len(ids))

	srv := web.NewServer(web.Options{
		Addr:         cfg.Server.Addr,
		Version:      version,
		Debug:        cfg.Server.RequestLog || cfg.Debug.Enabled,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, eng, sink)

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go eng.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(ctx)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("goodbye")
	return nil
}
