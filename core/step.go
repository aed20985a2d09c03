package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/model"
	"github.com/signalsfoundry/uav-offload-sim/offload"
)

// Step advances the simulation by one time step: mobility, task generation,
// dispatch, completion sweep and finally the clock. Per-task problems are
// recorded as outcomes; Step itself only fails before Initialize.
func (e *Environment) Step(ctx context.Context) error {
	began := time.Now()

	e.mu.Lock()
	if e.state == StateNew {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	e.moveUAVs()
	generated := e.generateTasks(ctx)
	dispatched := e.dispatch(ctx)
	completed := e.sweep(ctx)
	e.steps++
	// Derived from the step count so the clock does not drift.
	e.now = float64(e.steps) * e.cfg.TimeStep

	info := StepInfo{
		Step:       e.steps,
		Time:       e.now,
		Generated:  generated,
		Dispatched: dispatched,
		Completed:  completed,
		Pending:    len(e.queue) + len(e.flights),
		Elapsed:    time.Since(began),
	}
	listeners := append([]StepListener(nil), e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, info)
	}
	return nil
}

// moveUAVs lets the motion model plan, advances every UAV and samples its
// utilisation.
func (e *Environment) moveUAVs() {
	for _, u := range e.kb.ListUAVs() {
		before := u.Status()
		e.motion.Plan(u, e.rng)
		energy := u.Energy()
		u.UpdatePosition(e.cfg.TimeStep)
		if used := energy - u.Energy(); used > 0 {
			e.metrics.RecordUAVEnergy(used)
		}
		e.notifyStatus(u, before)
		e.metrics.RecordUAVUtilization(u.ID, u.Load())
	}
}

// generateTasks runs one Bernoulli trial per device with probability
// rate·dt and enqueues the READY tasks.
func (e *Environment) generateTasks(ctx context.Context) int {
	generated := 0
	for _, d := range e.kb.ListDevices() {
		p := d.GenerationRate * e.cfg.TimeStep
		if e.rng.Float64() >= p {
			continue
		}
		t, err := d.GenerateTask(e.newTaskID(), e.rng, e.now)
		if err != nil {
			e.log.Warn(ctx, "task generation failed",
				logging.String("device_id", d.ID),
				logging.Err(err))
			continue
		}
		_ = t.Transition(model.TaskReady)
		e.queue = append(e.queue, t)
		e.metrics.RecordTaskCreated()
		generated++
		e.log.Debug(ctx, "task generated",
			logging.String("task_id", t.ID),
			logging.String("device_id", d.ID),
			logging.String("category", string(t.Category)))
	}
	return generated
}

// newTaskID draws a UUID from the seeded generator so runs replay exactly.
func (e *Environment) newTaskID() string {
	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// dispatch places up to MaxTasksPerStep queued tasks in FIFO order. Tasks
// left behind wait for the next step.
func (e *Environment) dispatch(ctx context.Context) int {
	n := min(len(e.queue), e.cfg.MaxTasksPerStep)
	batch := e.queue[:n]
	for _, t := range batch {
		e.dispatchTask(ctx, t)
	}
	rest := append([]*model.Task(nil), e.queue[n:]...)
	for _, t := range rest {
		if t.Status() == model.TaskReady {
			_ = t.Transition(model.TaskWaiting)
		}
	}
	e.queue = rest
	return n
}

func (e *Environment) dispatchTask(ctx context.Context, t *model.Task) {
	if t.IsExpired(e.now) {
		e.drop(ctx, t, "deadline passed while queued")
		return
	}
	d, ok := e.kb.DeviceAt(t.SourceLocation)
	if !ok {
		e.log.Warn(ctx, "source device not found", logging.String("task_id", t.ID))
		e.fail(ctx, t, "source device not found", nil)
		return
	}

	reachable := e.kb.Reachable(d.Location)
	if len(reachable) == 0 {
		if d.EstimateLocalExecutionTime(t) > t.Deadline {
			e.drop(ctx, t, "no reachable uav and local deadline infeasible")
			return
		}
		e.runLocal(ctx, t, d, nil)
		return
	}

	decision, obs := e.engine.Decide(ctx, t, d, reachable)
	if decision.Target == model.TargetUAV {
		e.offload(ctx, t, d, decision.UAV, obs)
		return
	}
	e.runLocal(ctx, t, d, &obs)
}

// runLocal executes t on its source device. obs is nil when the engine was
// not consulted.
func (e *Environment) runLocal(ctx context.Context, t *model.Task, d *model.IoTDevice, obs *offload.Observation) {
	if err := d.ProcessTaskLocally(t); err != nil {
		e.fail(ctx, t, "local execution rejected", err)
		if obs != nil {
			e.engine.RecordExperience(*obs, 0)
		}
		return
	}
	energy := t.LocalEnergy(d.CPUPowerW())
	latency := d.EstimateLocalExecutionTime(t)
	e.metrics.RecordDeviceEnergy(energy)
	e.complete(ctx, t, latency)
	if obs != nil {
		e.engine.RecordExperience(*obs, offload.Reward(offload.Outcome{
			Completed:    true,
			Latency:      latency,
			Deadline:     t.Deadline,
			Energy:       energy,
			EnergyBudget: energy,
		}))
	}
}

// offload hands t to u and registers it in flight. The processing estimate is
// taken before admission so the task's own load does not slow it down.
func (e *Environment) offload(ctx context.Context, t *model.Task, d *model.IoTDevice, u *model.UAV, obs offload.Observation) {
	transfer := d.EstimateTransferTime(t, u)
	processing := u.EstimateCompletionTime(t)
	txEnergy := d.CalculateOffloadingEnergy(t, u)
	before := u.Status()
	if err := d.OffloadTask(t, u); err != nil {
		e.fail(ctx, t, "offload rejected", err)
		e.engine.RecordExperience(obs, 0)
		return
	}
	e.notifyStatus(u, before)
	e.metrics.RecordDeviceEnergy(txEnergy)
	e.metrics.RecordBytesTransferred(t.InputSize + t.OutputSize)
	e.flights = append(e.flights, &inFlight{
		task:       t,
		device:     d,
		uav:        u,
		obs:        obs,
		start:      e.now,
		transfer:   transfer,
		processing: processing,
		txEnergy:   txEnergy,
	})
	e.log.Debug(ctx, "task offloaded",
		logging.String("task_id", t.ID),
		logging.String("device_id", d.ID),
		logging.String("uav_id", u.ID),
		logging.Float("transfer_s", transfer),
		logging.Float("processing_s", processing))
}

// sweep finalises in-flight tasks whose processing time has elapsed. Tasks
// stranded on a UAV that ran out of energy fail.
func (e *Environment) sweep(ctx context.Context) int {
	completed := 0
	kept := e.flights[:0]
	for _, f := range e.flights {
		if f.uav.Status() == model.UAVOutOfEnergy {
			if err := f.uav.AbortTask(f.task); err != nil {
				e.log.Warn(ctx, "abort failed", logging.String("task_id", f.task.ID), logging.Err(err))
			}
			e.fail(ctx, f.task, "uav out of energy", nil)
			e.engine.RecordExperience(f.obs, 0)
			continue
		}
		elapsed := e.now - f.start
		if elapsed < f.processing {
			kept = append(kept, f)
			continue
		}

		before := f.uav.Status()
		used, err := f.uav.CompleteTask(f.task)
		if err != nil {
			e.fail(ctx, f.task, "uav completion failed", err)
			e.engine.RecordExperience(f.obs, 0)
			continue
		}
		e.notifyStatus(f.uav, before)
		e.metrics.RecordUAVEnergy(used)

		latency := f.transfer + elapsed
		e.complete(ctx, f.task, latency)
		e.engine.RecordExperience(f.obs, offload.Reward(offload.Outcome{
			Completed:    true,
			Latency:      latency,
			Deadline:     f.task.Deadline,
			Energy:       f.txEnergy,
			EnergyBudget: f.task.LocalEnergy(f.device.CPUPowerW()),
		}))
		completed++
	}
	for i := len(kept); i < len(e.flights); i++ {
		e.flights[i] = nil
	}
	e.flights = kept
	return completed
}

// complete records a finished task and marks its result returned.
func (e *Environment) complete(ctx context.Context, t *model.Task, latency float64) {
	met := latency <= t.Deadline
	e.metrics.RecordTaskCompleted(latency*1000, met)
	_ = t.Transition(model.TaskReturned)
	e.log.Debug(ctx, "task completed",
		logging.String("task_id", t.ID),
		logging.String("resource", t.AssignedResource()),
		logging.Float("latency_s", latency),
		logging.Bool("deadline_met", met))
}

func (e *Environment) fail(ctx context.Context, t *model.Task, reason string, err error) {
	if !t.Status().IsTerminal() {
		_ = t.Transition(model.TaskFailed)
	}
	e.metrics.RecordTaskFailed()
	fields := []logging.Field{
		logging.String("task_id", t.ID),
		logging.String("reason", reason),
		logging.SimTime(e.now),
	}
	if err != nil {
		fields = append(fields, logging.Err(err))
		if r := model.RejectReasonOf(err); r != model.RejectNone {
			fields = append(fields, logging.String("reject_reason", r.String()))
		}
	}
	e.log.Debug(ctx, "task failed", fields...)
}

func (e *Environment) drop(ctx context.Context, t *model.Task, reason string) {
	_ = t.Transition(model.TaskDropped)
	e.metrics.RecordTaskDropped()
	e.log.Debug(ctx, "task dropped",
		logging.String("task_id", t.ID),
		logging.String("reason", reason),
		logging.SimTime(e.now))
}
