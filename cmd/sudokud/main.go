// Command sudokud runs the multiplayer sudoku server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/sudokunet/config"
	"github.com/cyberinferno/sudokunet/game"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/results"
	"github.com/cyberinferno/sudokunet/server"
)

func main() {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:   "sudokud",
		Short: "Multiplayer sudoku server",
		Long: `sudokud hosts sudoku contests over TCP.

Players pick a nickname, create or join a session and race to fill
the shared board. Settings are read from the YAML file named by
` + config.EnvPath + `, if set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), serverAddr)
		},
	}
	rootCmd.Flags().StringVarP(&serverAddr, "server-addr", "a", "127.0.0.1", "address to listen on")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, host string) error {
	cfg, err := config.Load(os.Getenv(config.EnvPath))
	if err != nil {
		return err
	}

	log := logger.NewLogger(logger.Options{
		Service:    cfg.Server.Name,
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer log.Close()

	sink := results.NewNopSink()
	if cfg.Results.RedisAddr != "" {
		sink = results.NewRedisSink(cfg.Results.RedisAddr, cfg.Results.Key, cfg.Results.Timeout)
		log.Info("publishing results", logger.Field{Key: "redis", Value: cfg.Results.RedisAddr}, logger.Field{Key: "key", Value: cfg.Results.Key})
	}

	reg := game.NewRegistry(game.Options{
		Removals:   cfg.Puzzle.Removals,
		ListingTTL: cfg.Lobby.ListingTTL,
		Sink:       sink,
		Logger:     log,
	})

	srv := server.New(host, cfg, reg, log)
	if err := srv.Start(); err != nil {
		log.Error("failed to start server", logger.Field{Key: "addr", Value: srv.Addr}, logger.Err(err))
		_ = reg.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutting down")

	srv.Stop()
	if err := reg.Close(); err != nil {
		log.Warn("failed to close result sink", logger.Err(err))
	}

	return nil
}
