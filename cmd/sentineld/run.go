package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodalmesh/sentinel/internal/config"
	"github.com/nodalmesh/sentinel/internal/engine"
	"github.com/nodalmesh/sentinel/internal/logging"
	"github.com/nodalmesh/sentinel/internal/web"
)

var runFlags struct {
	requireSnapshot bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the harvesting, validation and serving engine",
	Long: `Start the engine: load configuration, restore the last persisted
snapshot, and begin the scheduled fetch/revalidate/retain/persist cycles
while serving the dashboard and /metrics over HTTP.`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runFlags.requireSnapshot, "require-snapshot", false,
		"fail startup instead of starting empty when no prior snapshot can be loaded")
}

// exitError carries the process exit code a configuration/startup
// failure should map to (spec §6/§7: 1 configuration, 2 snapshot load,
// 3 unrecoverable persistence).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("configuration error: %w", err)}
	}

	log := logging.New(cfg.Logging)

	eng, err := engine.New(cfg, log)
	if err != nil {
		return &exitError{code: 3, err: fmt.Errorf("unrecoverable persistence error: %w", err)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx, runFlags.requireSnapshot); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("snapshot load failed: %w", err)}
	}

	dash := web.New(func() any { return eng.Stats() }, logging.Component(log, "web"))
	go dash.Run(ctx)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: dash.Handler()}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("serving dashboard", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		log.Error("dashboard server failed", "error", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	srv.Shutdown(shutdownCtx)

	if err := eng.Shutdown(shutdownCtx); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("final persist failed: %w", err)}
	}

	return nil
}
