package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/blockhist/internal/server"
	"github.com/cwbudde/blockhist/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves a JSON API that computes histograms for frames in the data
directory, streams job events over SSE and lists jobs on an HTML index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		frames, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to open frame store: %w", err)
		}

		s := server.NewServer(serveAddr, frames)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- s.Start() }()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory of the frame store")
	rootCmd.AddCommand(serveCmd)
}
