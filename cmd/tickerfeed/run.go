package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/tickerfeed/internal/config"
	"github.com/deusflow/tickerfeed/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run cycles on the configured interval until interrupted",
	RunE:  runRun,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single cycle and print its report",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runner.Schedule(gctx, cfg.CycleInterval)
	})
	if cfg.EnableHTTP {
		srv := a.server(cfg, log)
		g.Go(func() error {
			return srv.Run(gctx, cfg.HTTPAddr)
		})
	}

	log.Info("tickerfeed started", "interval", cfg.CycleInterval, "http", cfg.EnableHTTP)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("tickerfeed stopped")
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.runner.RunCycle(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
