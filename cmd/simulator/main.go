// Command simulator runs a UAV edge-offloading scenario and prints a metrics
// report when it ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/api"
	"github.com/signalsfoundry/uav-offload-sim/internal/config"
	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/internal/observability"
	"github.com/signalsfoundry/uav-offload-sim/internal/report"
	"github.com/signalsfoundry/uav-offload-sim/internal/store"
	"github.com/signalsfoundry/uav-offload-sim/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "simulator:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	loader := config.NewLoader(fs)
	format := fs.String("format", report.FormatText, "Report format: text or json")
	runName := fs.String("name", "", "Name stored with the run history")

	cfg, err := loader.Load(args)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, stderr)

	shutdownTracing, err := observability.InitTracing(ctx, tracingConfig(cfg, stderr), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	simMetrics, err := observability.NewSimCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	env, err := core.NewEnvironment(cfg.Simulation, core.WithLogger(log))
	if err != nil {
		return err
	}
	env.AddStepListener(simMetrics.StepListener(env))

	if err := initialize(ctx, env, cfg); err != nil {
		return err
	}

	var recorder *store.Recorder
	var runs *store.Store
	if cfg.Storage.Path != "" {
		runs, err = store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer runs.Close()
		recorder, err = store.NewRecorder(ctx, runs, env, *runName, cfg.Storage.SampleEvery, log)
		if err != nil {
			return err
		}
		env.AddStepListener(recorder.Listener())
	}

	metricsSrv := serveMetrics(cfg.HTTP.MetricsListen, simMetrics, log)

	var apiSrv *api.Server
	if cfg.HTTP.Listen != "" {
		httpMetrics, err := observability.NewHTTPCollector(nil)
		if err != nil {
			return fmt.Errorf("init http metrics: %w", err)
		}
		opts := []api.Option{api.WithLogger(log), api.WithHTTPMetrics(httpMetrics)}
		if runs != nil {
			opts = append(opts, api.WithRunStore(runs))
		}
		apiSrv = api.NewServer(env, opts...)
		apiSrv.Start(cfg.HTTP.Listen)
	}

	log.Info(ctx, "starting simulation",
		logging.Float("duration", cfg.Scenario.Duration),
		logging.Bool("realtime", cfg.Scenario.RealTime),
		logging.String("scorer", cfg.Simulation.Engine.Scorer),
		logging.Int("devices", len(env.Devices())),
		logging.Int("uavs", len(env.UAVs())))

	runErr := drive(ctx, env, cfg.Scenario)
	status := store.StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled):
		status = store.StatusStopped
		runErr = nil
	case runErr != nil:
		status = store.StatusFailed
	}

	if recorder != nil {
		// The run context may already be cancelled; the summary is still written.
		if err := recorder.Finish(context.Background(), status); err != nil {
			log.Warn(ctx, "failed to record run summary", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if apiSrv != nil {
		_ = apiSrv.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		return runErr
	}
	return report.Write(stdout, env, *format)
}

// initialize populates env from the declared fleet or the random counts.
func initialize(ctx context.Context, env *core.Environment, cfg *config.Config) error {
	if !cfg.Explicit() {
		return env.Initialize(ctx, cfg.Scenario.Devices, cfg.Scenario.UAVs)
	}
	devices, uavs, err := cfg.Fleet()
	if err != nil {
		return err
	}
	return env.InitializeWith(ctx, devices, uavs)
}

// drive runs the scenario. Accelerated runs step back-to-back; real-time
// runs are paced by a wall-clock time controller, one step per tick.
func drive(ctx context.Context, env *core.Environment, sc config.Scenario) error {
	if timectrl.ParseMode(sc.RealTime) == timectrl.Accelerated {
		return env.Run(ctx, sc.Duration)
	}

	if err := env.Begin(ctx); err != nil {
		return err
	}
	defer env.End()

	tick := time.Duration(env.Config().TimeStep * float64(time.Second))
	tc := timectrl.NewTimeController(time.Now().UTC(), tick, timectrl.RealTime)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stepErr error
	tc.AddListener(func(time.Time) {
		if stepErr != nil {
			return
		}
		if err := env.Step(ctx); err != nil {
			stepErr = err
			cancel()
		}
	})
	<-tc.Start(ctx, time.Duration(sc.Duration*float64(time.Second)))

	if stepErr != nil {
		return stepErr
	}
	return ctx.Err()
}

func newLogger(cfg config.LogConfig, out io.Writer) logging.Logger {
	lc := cfg.LoggingConfig()
	lc.Output = out
	return logging.New(lc)
}

// tracingConfig starts from SIM_TRACING_* and lets an enabled config file
// section take over. Spans are tagged with the run's scorer, mobility and seed.
func tracingConfig(cfg *config.Config, spans io.Writer) observability.TracingConfig {
	tc := observability.TracingConfigFromEnv()
	if c := cfg.Tracing; c.Enabled {
		tc.Enabled = true
		if c.Exporter != "" {
			tc.Exporter = c.Exporter
		}
		if c.Endpoint != "" {
			tc.Endpoint = c.Endpoint
		}
		tc.SampleRatio = c.SampleRatio
	}
	tc.Writer = spans
	tc.Attributes = []attribute.KeyValue{
		attribute.String("sim.scorer", cfg.Simulation.Engine.Scorer),
		attribute.String("sim.mobility", cfg.Simulation.Mobility),
		attribute.Int64("sim.seed", cfg.Simulation.Seed),
	}
	return tc
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

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
