// Command sudoku is the console client for sudokud.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/sudokunet/client"
	"github.com/cyberinferno/sudokunet/console"
	"github.com/cyberinferno/sudokunet/logger"
)

func main() {
	var serverAddr string

	rootCmd := &cobra.Command{
		Use:           "sudoku",
		Short:         "Play multiplayer sudoku against other players",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), serverAddr)
		},
	}
	rootCmd.Flags().StringVarP(&serverAddr, "server-addr", "a", "127.0.0.1", "server address offered at the connect prompt")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, defaultHost string) error {
	// The terminal belongs to the game; logs only go to the file.
	log := logger.NewLogger(logger.Options{
		Service:    "sudoku",
		Level:      "debug",
		JSON:       true,
		File:       filepath.Join(os.TempDir(), "sudoku-client.log"),
		MaxSizeMB:  5,
		MaxBackups: 1,
		Out:        io.Discard,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting client application...")

	stdio := console.NewStdio()
	cl := client.New(client.DefaultConfig(), log)
	p := newPlay(stdio, cl, defaultHost, log)

	go func() {
		<-ctx.Done()
		stdio.Close(console.PipeIn)
	}()

	err := p.run(ctx)
	p.close()
	stdio.Close(console.PipeBoth)
	stop()

	if err != nil {
		log.Error("client stopped", logger.Err(err))
	}
	log.Info("terminating")
	return err
}
