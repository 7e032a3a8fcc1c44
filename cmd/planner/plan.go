package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/midcourse-planner/core"
	"github.com/signalsfoundry/midcourse-planner/internal/config"
	"github.com/signalsfoundry/midcourse-planner/internal/lifecycle"
	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
	"github.com/signalsfoundry/midcourse-planner/internal/oracle"
	"github.com/signalsfoundry/midcourse-planner/internal/pipeline"
	"github.com/signalsfoundry/midcourse-planner/internal/scenario"
	"github.com/signalsfoundry/midcourse-planner/internal/timeline"
	"github.com/signalsfoundry/midcourse-planner/kb"
	"github.com/signalsfoundry/midcourse-planner/timectrl"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run the configured scenario and write timeline records",
	Long:  "plan steps the simulation clock over the configured raid, plans every missile admitted into midcourse and writes one JSON object per timeline record.",
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

		out := cmd.OutOrStdout()
		if planOutput != "" {
			f, err := os.Create(planOutput)
			if err != nil {
				return fmt.Errorf("open output: %w", err)
			}
			defer f.Close()
			out = f
		}

		report, err := runPlan(ctx, cfg, out, log)
		if report != nil {
			log.Info(ctx, "plan summary",
				logging.String("run_id", report.RunID),
				logging.Int("planned", len(report.Planned)),
				logging.Int("failed", len(report.Failed)),
				logging.Int("abandoned", len(report.Abandoned)),
				logging.Bool("interrupted", errors.Is(err, context.Canceled)),
			)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "write records to this file instead of stdout")
}

// runPlan builds the constellation, scenario and oracle from cfg and runs
// the planner to the end of the simulation.
func runPlan(ctx context.Context, cfg *config.Config, out io.Writer, log logging.Logger) (*pipeline.Report, error) {
	reg := prometheus.NewRegistry()
	plannerMetrics, err := observability.NewPlannerCollector(reg)
	if err != nil {
		return nil, err
	}
	oracleMetrics, err := observability.NewOracleCollector(reg)
	if err != nil {
		return nil, err
	}
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		srv := serveMetrics(addr, plannerMetrics.Handler(), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	start, err := cfg.Simulation.Start()
	if err != nil {
		return nil, err
	}
	catalog, flights, err := buildCatalog(cfg, start)
	if err != nil {
		return nil, err
	}

	base, closeOracle, err := buildOracle(cfg, catalog, log, oracleMetrics)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeOracle(); err != nil {
			log.Warn(ctx, "closing oracle", logging.Err(err))
		}
	}()
	retrying := oracle.NewRetrying(base, oracle.RetryPolicy{
		MaxAttempts:     cfg.STK.MaxRetries,
		InitialInterval: cfg.STK.RetryInitialInterval.Duration(),
		MaxInterval:     10 * cfg.STK.RetryInitialInterval.Duration(),
	}, log, oracleMetrics)

	threshold := cfg.TaskPlanning.MidcourseAltitudeThreshold
	mgr := lifecycle.NewManager(cfg.Missile.MaxConcurrentMissiles, threshold,
		lifecycle.WithLogger(log), lifecycle.WithMetrics(plannerMetrics))
	p := pipeline.New(retrying, catalog.SatelliteIDs(), pipeline.Settings{
		MetaDuration:   cfg.MetaTaskManagement.AtomicTaskInterval.Duration(),
		AtomicDuration: cfg.TaskPlanning.AtomicTaskDuration.Duration(),
		Timeline: timeline.Config{
			DisplayInterval:  cfg.TimelineConverter.VirtualTaskSampling.DisplayInterval,
			MinLabelDuration: cfg.TimelineConverter.MinLabelDuration.Duration(),
		},
	}, pipeline.WithLogger(log), pipeline.WithMetrics(plannerMetrics))

	sink := pipeline.NewJSONLinesSink(out)
	planner := pipeline.NewPlanner(mgr, p, sink, flights, threshold,
		pipeline.WithPlannerLogger(log), pipeline.WithPlannerMetrics(plannerMetrics))

	mode := timectrl.Accelerated
	if cfg.Simulation.Mode == "realtime" {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(start, cfg.Simulation.Tick.Duration(), mode)
	log.Debug(ctx, "simulation clock ready", logging.String("mode", mode.String()))

	report, runErr := planner.Run(ctx, clock, start.Add(cfg.Simulation.Duration.Duration()))
	return report, errors.Join(runErr, sink.Flush())
}

// buildCatalog generates the constellation and registers the scenario's
// trajectories.
func buildCatalog(cfg *config.Config, start time.Time) (*kb.KnowledgeBase, []scenario.Flight, error) {
	sats, err := core.BuildWalker(cfg.WalkerParams(), start)
	if err != nil {
		return nil, nil, err
	}
	catalog := kb.NewKnowledgeBase()
	if err := catalog.LoadConstellation(sats); err != nil {
		return nil, nil, err
	}
	flights, err := scenario.Build(cfg.Scenario, start)
	if err != nil {
		return nil, nil, err
	}
	if err := scenario.Register(catalog, flights); err != nil {
		return nil, nil, err
	}
	return catalog, flights, nil
}

// buildOracle dials the remote oracle when stk.address is set and
// otherwise bounds the in-process geometry oracle with the same pool size.
func buildOracle(cfg *config.Config, catalog *kb.KnowledgeBase, log logging.Logger, metrics *observability.OracleCollector) (oracle.Oracle, func() error, error) {
	if cfg.STK.Address != "" {
		client, err := oracle.Dial(oracle.ClientConfig{
			Address:           cfg.STK.Address,
			MaxConnections:    cfg.STK.MaxConnections,
			ConnectionTimeout: cfg.STK.ConnectionTimeout.Duration(),
		}, log, metrics)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	geo := oracle.NewGeometry(catalog, geometryConfig(cfg))
	pool := oracle.NewPool(cfg.STK.MaxConnections, cfg.STK.ConnectionTimeout.Duration(), metrics)
	log.Debug(context.Background(), "using in-process geometry oracle",
		logging.Int("pool_size", pool.Size()),
	)
	return oracle.Bounded(geo, pool), func() error { return nil }, nil
}

func geometryConfig(cfg *config.Config) oracle.GeometryConfig {
	gc := oracle.DefaultGeometryConfig()
	gc.SampleStep = cfg.STK.SampleStep.Duration()
	gc.ConeHalfAngleDeg = cfg.Constellation.Payload.ConeHalfAngleDeg
	gc.MaxRangeKm = cfg.Constellation.Payload.MaxRangeKm
	return gc
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
