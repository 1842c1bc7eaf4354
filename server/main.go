package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/roulette/pkg/config"
	"example.com/roulette/pkg/logging"
	"example.com/roulette/pkg/matchmaker"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var opts config.ServerOptions

	cmd := &cobra.Command{
		Use:   "roulette-server",
		Short: "Random one-on-one call matchmaking and signaling server",
		Long: `roulette-server pairs anonymous participants at random and relays the
WebRTC offer, answer and ICE candidates between each pair. Media never
passes through the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "listen port (env PORT, default "+config.DefaultPort+")")
	return cmd
}

func run(ctx context.Context, cfg *config.Server) error {
	logger := logging.Init()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := matchmaker.NewHub(matchmaker.NewMemoryStore(), logger)
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newMux(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("signaling server starting", "addr", srv.Addr, "ws", fmt.Sprintf("ws://localhost%s/ws", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Upgraded connections are not tracked by the http server; stopping the
	// hub closes them.
	stopHub()
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
