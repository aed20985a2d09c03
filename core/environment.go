// Package core runs the time-stepped UAV offloading simulation. A single
// goroutine advances the Environment; everything else observes it through
// snapshots.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/kb"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
	"github.com/signalsfoundry/uav-offload-sim/offload"
)

const tracerName = "github.com/signalsfoundry/uav-offload-sim/core"

// State is the lifecycle of a simulation run.
type State int

const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNotInitialized is returned when stepping before Initialize.
	ErrNotInitialized = errors.New("environment not initialized")
	// ErrRunning is returned when an operation conflicts with an active Run.
	ErrRunning = errors.New("environment is running")
)

// StepInfo summarises one completed step for listeners.
type StepInfo struct {
	Step int64
	// Time is the simulated clock after the step, in seconds.
	Time       float64
	Generated  int
	Dispatched int
	Completed  int
	Pending    int
	// Elapsed is the wall time the step took.
	Elapsed time.Duration
}

// StepListener is invoked after every step, outside the environment lock, so
// it may read snapshots.
type StepListener func(ctx context.Context, info StepInfo)

// inFlight tracks a task accepted by a UAV until its processing time elapses.
type inFlight struct {
	task   *model.Task
	device *model.IoTDevice
	uav    *model.UAV
	obs    offload.Observation

	start      float64
	transfer   float64
	processing float64
	txEnergy   float64
}

// Environment owns all entities and advances them in fixed time steps.
type Environment struct {
	cfg     Config
	log     logging.Logger
	metrics *metrics.Collector
	engine  *offload.Engine
	motion  MotionModel

	// mu guards the fields below against concurrent snapshot readers.
	mu        sync.RWMutex
	kb        *kb.KnowledgeBase
	rng       *rand.Rand
	state     State
	steps     int64
	now       float64
	queue     []*model.Task
	flights   []*inFlight
	listeners []StepListener
	// training is set while a Begin-started trainer is running.
	training bool

	stop atomic.Bool
}

// Option customises an Environment.
type Option func(*envOptions)

type envOptions struct {
	log       logging.Logger
	metrics   *metrics.Collector
	scorer    offload.Scorer
	listeners []StepListener
}

// WithLogger sets the logger used by the environment and its engine.
func WithLogger(l logging.Logger) Option {
	return func(o *envOptions) { o.log = l }
}

// WithMetrics records into an existing collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *envOptions) { o.metrics = c }
}

// WithScorer overrides the scorer chosen by the engine config.
func WithScorer(s offload.Scorer) Option {
	return func(o *envOptions) { o.scorer = s }
}

// WithStepListener registers fn to run after every step.
func WithStepListener(fn StepListener) Option {
	return func(o *envOptions) { o.listeners = append(o.listeners, fn) }
}

// NewEnvironment validates cfg and builds an empty environment in state NEW.
func NewEnvironment(cfg Config, opts ...Option) (*Environment, error) {
	if cfg.Mobility == "" {
		cfg.Mobility = MobilityStatic
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := envOptions{log: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Noop()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewCollector()
	}
	engineOpts := []offload.Option{offload.WithLogger(o.log)}
	if o.scorer != nil {
		engineOpts = append(engineOpts, offload.WithScorer(o.scorer))
	}
	engine, err := offload.NewEngine(cfg.Engine, o.metrics, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Environment{
		cfg:       cfg,
		log:       o.log,
		metrics:   o.metrics,
		engine:    engine,
		motion:    NewMotionModel(cfg.Mobility, cfg.Area),
		kb:        kb.NewKnowledgeBase(),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		listeners: o.listeners,
	}, nil
}

// Config returns the environment configuration.
func (e *Environment) Config() Config { return e.cfg }

// Engine returns the decision engine.
func (e *Environment) Engine() *offload.Engine { return e.engine }

// KnowledgeBase returns the entity registry. Callers must not mutate entities
// while a run is in progress.
func (e *Environment) KnowledgeBase() *kb.KnowledgeBase { return e.kb }

// AddStepListener registers fn to run after every step.
func (e *Environment) AddStepListener(fn StepListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Initialize replaces all entities with devices and uavs randomly drawn
// inside the area and resets the clock, queue and metrics.
func (e *Environment) Initialize(ctx context.Context, devices, uavs int) error {
	if devices < 0 || uavs < 0 {
		return fmt.Errorf("entity counts must not be negative, got %d devices and %d uavs", devices, uavs)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return ErrRunning
	}
	e.reset()

	for i := 0; i < devices; i++ {
		var err error
		// Random positions collide with negligible probability; redraw if
		// one does.
		for attempt := 0; attempt < 10; attempt++ {
			err = e.addDevice(RandomDeviceConfig(i, e.rng, e.cfg.Area))
			if !errors.Is(err, kb.ErrDuplicateLocation) {
				break
			}
		}
		if err != nil {
			return err
		}
	}
	for i := 0; i < uavs; i++ {
		if err := e.addUAV(RandomUAVConfig(i, e.rng, e.cfg.Area)); err != nil {
			return err
		}
	}
	e.state = StateInitialized
	e.log.Info(ctx, "environment initialized",
		logging.Int("devices", devices),
		logging.Int("uavs", uavs),
		logging.Int64("seed", e.cfg.Seed))
	return nil
}

// InitializeWith replaces all entities with the given explicit ones and
// resets the clock, queue and metrics. Invalid entities fail fast and leave
// the environment uninitialized.
func (e *Environment) InitializeWith(ctx context.Context, devices []model.DeviceConfig, uavs []model.UAVConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return ErrRunning
	}
	e.reset()
	for _, cfg := range devices {
		if err := e.addDevice(cfg); err != nil {
			e.kb.Reset()
			return err
		}
	}
	for _, cfg := range uavs {
		if err := e.addUAV(cfg); err != nil {
			e.kb.Reset()
			return err
		}
	}
	e.state = StateInitialized
	e.log.Info(ctx, "environment initialized",
		logging.Int("devices", len(devices)),
		logging.Int("uavs", len(uavs)))
	return nil
}

// reset clears run state. Callers hold e.mu.
func (e *Environment) reset() {
	e.kb.Reset()
	e.metrics.Reset()
	e.engine.Reset()
	e.rng = rand.New(rand.NewSource(e.cfg.Seed))
	e.queue = nil
	e.flights = nil
	e.steps = 0
	e.now = 0
	e.state = StateNew
}

func (e *Environment) addDevice(cfg model.DeviceConfig) error {
	d, err := model.NewIoTDevice(cfg)
	if err != nil {
		return err
	}
	return e.kb.AddDevice(d)
}

func (e *Environment) addUAV(cfg model.UAVConfig) error {
	u, err := model.NewUAV(cfg)
	if err != nil {
		return err
	}
	return e.kb.AddUAV(u)
}

// Begin moves the environment to RUNNING and, when the engine scorer is
// trainable, starts a background trainer that refits it until End. Callers
// that pace Step themselves bracket their loop with Begin and End.
func (e *Environment) Begin(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateNew:
		return ErrNotInitialized
	case StateRunning:
		return ErrRunning
	}
	e.state = StateRunning
	e.stop.Store(false)

	if _, ok := e.engine.Scorer().(offload.Trainable); ok {
		e.training = e.engine.StartTrainer(ctx) == nil
	}
	return nil
}

// End stops the trainer started by Begin and moves the environment to
// STOPPED. It is a no-op unless the environment is running.
func (e *Environment) End() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	training := e.training
	e.training = false
	e.mu.Unlock()

	if training {
		e.engine.StopTrainer()
	}
}

// Run steps the simulation until duration simulated seconds have elapsed,
// Stop is called or ctx is cancelled. Stop and cancellation take effect
// between steps. The run is bracketed by Begin and End.
func (e *Environment) Run(ctx context.Context, duration float64) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.run")
	defer span.End()

	if err := e.Begin(ctx); err != nil {
		return err
	}
	start := e.Now()

	steps := stepsFor(duration, e.cfg.TimeStep)
	span.SetAttributes(
		attribute.Float64("sim.start", start),
		attribute.Float64("sim.duration", duration),
		attribute.Int64("sim.steps", steps),
	)
	e.log.Info(ctx, "simulation run started",
		logging.Float("start", start),
		logging.Float("duration", duration))

	var runErr error
	var done int64
	for ; done < steps; done++ {
		if e.stop.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := e.Step(ctx); err != nil {
			runErr = err
			break
		}
	}

	e.End()
	now := e.Now()

	span.SetAttributes(attribute.Int64("sim.steps_done", done))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "simulation run failed")
	}
	e.log.Info(ctx, "simulation run stopped",
		logging.SimTime(now),
		logging.Int64("steps", done))
	return runErr
}

// stepsFor converts a simulated duration into a whole number of steps,
// tolerating floating point noise in duration/step.
func stepsFor(duration, step float64) int64 {
	if duration <= 0 {
		return 0
	}
	return int64(math.Ceil(duration/step - 1e-9))
}

// Stop asks a running simulation to halt after the current step.
func (e *Environment) Stop() {
	e.stop.Store(true)
}

// State returns the lifecycle state.
func (e *Environment) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Now returns the simulated clock in seconds.
func (e *Environment) Now() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now
}

// Steps returns the number of steps taken since initialization.
func (e *Environment) Steps() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.steps
}

// Metrics returns a snapshot of the collector.
func (e *Environment) Metrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// Collector returns the live metrics collector.
func (e *Environment) Collector() *metrics.Collector { return e.metrics }

// Devices returns point-in-time copies of every device.
func (e *Environment) Devices() []model.DeviceSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	devices := e.kb.ListDevices()
	out := make([]model.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// UAVs returns point-in-time copies of every UAV.
func (e *Environment) UAVs() []model.UAVSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	uavs := e.kb.ListUAVs()
	out := make([]model.UAVSnapshot, 0, len(uavs))
	for _, u := range uavs {
		out = append(out, u.Snapshot())
	}
	return out
}

// Pending returns how many tasks are queued or in flight.
func (e *Environment) Pending() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.queue) + len(e.flights)
}

// SetUAVTarget sends a UAV towards loc.
func (e *Environment) SetUAVTarget(id string, loc model.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.kb.GetUAV(id)
	if u == nil {
		return fmt.Errorf("%w: uav %q", kb.ErrNotFound, id)
	}
	before := u.Status()
	if err := u.SetTarget(loc); err != nil {
		return err
	}
	e.notifyStatus(u, before)
	return nil
}

// SetUAVMaintenance takes a UAV out of service or returns it.
func (e *Environment) SetUAVMaintenance(id string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.kb.GetUAV(id)
	if u == nil {
		return fmt.Errorf("%w: uav %q", kb.ErrNotFound, id)
	}
	before := u.Status()
	u.SetMaintenance(on)
	e.notifyStatus(u, before)
	return nil
}

func (e *Environment) notifyStatus(u *model.UAV, before model.UAVStatus) {
	if after := u.Status(); after != before {
		_ = e.kb.NotifyUAVStatus(u.ID, after)
	}
}
