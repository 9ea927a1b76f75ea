package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jonathan/keyword-collector/internal/config"
	"github.com/jonathan/keyword-collector/internal/observability"
	"github.com/jonathan/keyword-collector/internal/server"
)

var (
	servePort           int
	serveConfigPath     string
	serveMaxConcurrent  int64
	serveAcquireTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that runs keyword collections on request.

Every /v1 endpoint requires a bearer token signed with JWT_SECRET (see the token command).
GET /health and GET /metrics are public.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config JSON file")
	serveCmd.Flags().Int64Var(&serveMaxConcurrent, "max-concurrent", server.DefaultMaxConcurrent, "Collections allowed to run at once")
	serveCmd.Flags().DurationVar(&serveAcquireTimeout, "acquire-timeout", 0, "How long a request waits for a free collection slot (0 waits for the client)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(serveConfigPath)
	if err != nil {
		return err
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to load JWT config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.NewJSONLogger(os.Stderr, cfg.Verbose)

	a, err := newApp(ctx, cfg, log, prometheus.DefaultRegisterer, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := server.Config{
		Port:           servePort,
		Collector:      a.collector,
		Artifacts:      a.store,
		JWT:            jwtCfg,
		MaxConcurrent:  serveMaxConcurrent,
		AcquireTimeout: serveAcquireTimeout,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         log,
	}
	if a.database != nil {
		srvCfg.Runs = a.database
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
