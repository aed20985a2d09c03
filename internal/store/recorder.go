package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
)

// Recorder writes one Run row per simulation run and a Sample every N steps.
// Storage errors are logged and never stop the simulation.
type Recorder struct {
	store *Store
	env   *core.Environment
	every int64
	log   logging.Logger
	run   *Run
}

// NewRecorder creates the Run row for env. every is the sampling interval in
// steps; zero records only the final summary.
func NewRecorder(ctx context.Context, s *Store, env *core.Environment, name string, every int, log logging.Logger) (*Recorder, error) {
	if log == nil {
		log = logging.Noop()
	}
	cfg := env.Config()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run config: %w", err)
	}
	run := &Run{
		ID:      uuid.NewString(),
		Name:    name,
		Seed:    cfg.Seed,
		Scorer:  cfg.Engine.Scorer,
		Devices: len(env.Devices()),
		UAVs:    len(env.UAVs()),
		Config:  string(raw),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &Recorder{store: s, env: env, every: int64(every), log: log, run: run}, nil
}

// RunID returns the ID of the recorded run.
func (r *Recorder) RunID() string { return r.run.ID }

// Listener samples metrics after every Nth step.
func (r *Recorder) Listener() core.StepListener {
	return func(ctx context.Context, info core.StepInfo) {
		if r.every <= 0 || info.Step%r.every != 0 {
			return
		}
		s := r.env.Metrics()
		sample := &Sample{
			RunID:                 r.run.ID,
			Step:                  info.Step,
			SimTime:               info.Time,
			Pending:               info.Pending,
			TotalTasks:            s.TotalTasks,
			CompletedTasks:        s.CompletedTasks,
			FailedTasks:           s.FailedTasks,
			DroppedTasks:          s.DroppedTasks,
			AverageLatencyMs:      s.AverageLatencyMs,
			DeadlineMeetRate:      s.DeadlineMeetRate,
			TotalEnergyJ:          s.TotalEnergyJ,
			AverageUAVUtilization: s.AverageUAVUtilization,
		}
		if err := r.store.SaveSample(ctx, sample); err != nil {
			r.log.Warn(ctx, "failed to store metrics sample",
				logging.String("run_id", r.run.ID),
				logging.Int64("step", info.Step),
				logging.Err(err))
		}
	}
}

// Finish stores the final summary under status.
func (r *Recorder) Finish(ctx context.Context, status string) error {
	summarize(r.run, r.env.Steps(), r.env.Now(), r.env.Metrics())
	if err := r.store.FinishRun(ctx, r.run, status); err != nil {
		return fmt.Errorf("finish run %s: %w", r.run.ID, err)
	}
	r.log.Info(ctx, "run recorded",
		logging.String("run_id", r.run.ID),
		logging.String("status", status),
		logging.Int64("steps", r.run.Steps))
	return nil
}

func summarize(run *Run, steps int64, now float64, s metrics.Snapshot) {
	run.Steps = steps
	run.SimTime = now
	run.TotalTasks = s.TotalTasks
	run.CompletedTasks = s.CompletedTasks
	run.FailedTasks = s.FailedTasks
	run.DroppedTasks = s.DroppedTasks
	run.SuccessRate = s.SuccessRate
	run.AverageLatencyMs = s.AverageLatencyMs
	run.TotalEnergyJ = s.TotalEnergyJ
}
