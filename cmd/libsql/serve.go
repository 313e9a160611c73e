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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tomyedwab/libsqlgo/server"
)

type cmdServe struct {
	Config           string        `long:"config" env:"LIBSQL_CONFIG" description:"YAML configuration file"`
	Listen           string        `long:"listen" description:"Address to listen on"`
	DataDir          string        `long:"data-dir" description:"Directory holding one database per namespace"`
	DefaultNamespace string        `long:"default-namespace" description:"Namespace of requests without a namespace header"`
	JWTSecretFile    string        `long:"jwt-secret-file" description:"Require bearer tokens signed with the key in this file"`
	StreamIdle       time.Duration `long:"stream-idle-timeout" description:"Close streams unused for this long"`
	Metrics          bool          `long:"metrics" description:"Serve prometheus metrics at /metrics"`
	ShutdownTimeout  time.Duration `long:"shutdown-timeout" default:"10s" description:"How long to wait for requests on shutdown"`
}

// config merges the configuration file with flags; flags win.
func (cmd *cmdServe) config() (server.Config, error) {
	var cfg server.Config
	if cmd.Config != "" {
		var err error
		if cfg, err = server.LoadConfig(cmd.Config); err != nil {
			return cfg, err
		}
	}
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}
	if cmd.DataDir != "" {
		cfg.DataDir = cmd.DataDir
	}
	if cmd.DefaultNamespace != "" {
		cfg.DefaultNamespace = cmd.DefaultNamespace
	}
	if cmd.JWTSecretFile != "" {
		cfg.JWTSecretFile = cmd.JWTSecretFile
	}
	if cmd.StreamIdle > 0 {
		cfg.StreamIdleTimeout = cmd.StreamIdle
	}
	if cfg.DataDir == "" {
		return cfg, errors.New("a data directory is required (--data-dir or data_dir)")
	}
	return cfg, nil
}

func (cmd *cmdServe) Execute([]string) error {
	logger := setupLogger()

	cfg, err := cmd.config()
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	cfg = srv.Config()

	handler := srv.Handler()
	if cmd.Metrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", handler)
		handler = mux
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return srv.RunReaper(ctx)
	})
	group.Go(func() error {
		logger.Info("Starting server", "listen", cfg.Listen, "data_dir", cfg.DataDir,
			"auth", cfg.JWTSecretFile != "", "metrics", cmd.Metrics)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			cancel()
			return nil
		}
		return err
	})

	err = group.Wait()
	if closeErr := srv.Close(); closeErr != nil {
		logger.Error("Failed to close namespaces", "error", closeErr)
	}
	logger.Info("Server stopped")
	return err
}
