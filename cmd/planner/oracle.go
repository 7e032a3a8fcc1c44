package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/midcourse-planner/internal/config"
	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/internal/oracle"
)

var oracleListen string

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Serve the geometry visibility oracle over gRPC",
	Long:  "oracle answers visibility queries for the configured constellation and scenario so planners can run against a remote oracle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		log := newLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

		lis, err := net.Listen("tcp", oracleListen)
		if err != nil {
			return err
		}
		return serveOracle(ctx, cfg, lis, log)
	},
}

func init() {
	oracleCmd.Flags().StringVar(&oracleListen, "listen", ":50051", "TCP address the oracle listens on")
}

// serveOracle serves until ctx is done, then stops gracefully.
func serveOracle(ctx context.Context, cfg *config.Config, lis net.Listener, log logging.Logger) error {
	start, err := cfg.Simulation.Start()
	if err != nil {
		return err
	}
	catalog, _, err := buildCatalog(cfg, start)
	if err != nil {
		return err
	}

	collector, err := observability.NewOracleCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		srv := serveMetrics(addr, collector.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	server := grpc.NewServer(oracle.ServerOptions(log, collector)...)
	oracle.NewServer(oracle.NewGeometry(catalog, geometryConfig(cfg)), log).Register(server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()
	log.Info(ctx, "visibility oracle listening",
		logging.String("addr", lis.Addr().String()),
		logging.Int("satellites", len(catalog.SatelliteIDs())),
		logging.Int("missiles", len(catalog.ListMissiles())),
	)

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down visibility oracle")
		server.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
