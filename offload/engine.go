// Package offload decides where each IoT task runs: on its source device or
// on one of the UAVs in range. Decisions come from a pluggable Scorer that
// can be refit online from recorded outcomes.
package offload

import (
	"context"
	"sync/atomic"

	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

const tracerName = "github.com/signalsfoundry/uav-offload-sim/offload"

// Fallback reasons attached to decisions whose policy output was overridden.
const (
	FallbackUAVInfeasible = "uav_infeasible"
	FallbackSentinel      = "sentinel_slot"
	FallbackLocalDisabled = "local_disabled"
	FallbackNoUAV         = "local_disabled_no_uav"
)

// Observation is what the engine saw and did for one task. The caller hands
// it back with a reward once the task ends.
type Observation struct {
	Features []float64
	// PolicyAction is the raw arg-max of the scorer.
	PolicyAction int
	// Action is the executed action after fallbacks.
	Action int
}

type scorerBox struct{ Scorer }

// Engine chooses LOCAL or a UAV for each task.
type Engine struct {
	cfg     Config
	log     logging.Logger
	metrics *metrics.Collector

	policy    atomic.Pointer[scorerBox]
	buffer    *ExperienceBuffer
	retrainCh chan struct{}
	trainer   trainState
}

// Option customises an Engine.
type Option func(*Engine)

// WithScorer replaces the scorer chosen by Config.Scorer.
func WithScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.policy.Store(&scorerBox{s})
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine validates cfg and builds an engine recording into collector.
func NewEngine(cfg Config, collector *metrics.Collector, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	e := &Engine{
		cfg:       cfg,
		log:       logging.Noop(),
		metrics:   collector,
		buffer:    NewExperienceBuffer(cfg.ExperienceCapacity),
		retrainCh: make(chan struct{}, 1),
	}
	switch cfg.Scorer {
	case ScorerHeuristic:
		e.policy.Store(&scorerBox{NewHeuristicScorer()})
	default:
		e.policy.Store(&scorerBox{NewMLPScorer(FeatureLen(cfg.Slots), cfg.Hidden, cfg.Actions(), cfg.Seed)})
	}
	for _, opt := range opts {
		opt(e)
	}
	e.trainer.init(cfg.Seed)
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Scorer returns the policy currently serving decisions.
func (e *Engine) Scorer() Scorer { return e.policy.Load().Scorer }

// Experiences returns the experience buffer.
func (e *Engine) Experiences() *ExperienceBuffer { return e.buffer }

// Decide picks a placement for t. reachable must be in discovery order and
// non-empty; entries beyond Config.Slots are ignored and missing slots are
// padded with sentinels.
func (e *Engine) Decide(ctx context.Context, t *model.Task, d *model.IoTDevice, reachable []*model.UAV) (model.OffloadingDecision, Observation) {
	slots, padded, truncated := fitSlots(reachable, e.cfg.Slots, d.Location)
	if truncated > 0 {
		e.log.Warn(ctx, "more reachable uavs than decision slots, ignoring extras",
			logging.String("task_id", t.ID),
			logging.Int("reachable", len(reachable)),
			logging.Int("slots", e.cfg.Slots))
	}
	if padded > 0 {
		e.log.Warn(ctx, "fewer reachable uavs than decision slots, padding with sentinels",
			logging.String("task_id", t.ID),
			logging.Int("reachable", len(reachable)),
			logging.Int("slots", e.cfg.Slots))
	}

	features := Features(t, d, slots)
	probs := e.Scorer().Score(features)
	policyAction := argmax(probs)
	if policyAction > e.cfg.LocalAction() {
		policyAction = e.cfg.LocalAction()
	}

	decision, action := e.resolve(t, d, slots, policyAction)
	e.metrics.RecordDecision(decision.Kind())
	if decision.Fallback != "" {
		e.metrics.RecordFallback()
		e.log.Debug(ctx, "policy choice overridden",
			logging.String("task_id", t.ID),
			logging.Int("policy_action", policyAction),
			logging.String("reason", decision.Fallback),
			logging.String("placement", decision.String()))
	}
	return decision, Observation{Features: features, PolicyAction: policyAction, Action: action}
}

// resolve turns the policy's choice into a feasible decision.
func (e *Engine) resolve(t *model.Task, d *model.IoTDevice, slots []*model.UAV, action int) (model.OffloadingDecision, int) {
	local := e.cfg.LocalAction()
	if action < local {
		u := slots[action]
		switch {
		case u.IsSentinel():
			return e.localDecision(t, d, FallbackSentinel), local
		case !u.CanProcessTask(t):
			return e.localDecision(t, d, FallbackUAVInfeasible), local
		default:
			return e.uavDecision(t, d, u, ""), action
		}
	}
	if e.cfg.EnableLocal {
		return e.localDecision(t, d, ""), local
	}
	if first := slots[0]; !first.IsSentinel() && first.CanProcessTask(t) {
		return e.uavDecision(t, d, first, FallbackLocalDisabled), 0
	}
	return e.localDecision(t, d, FallbackNoUAV), local
}

func (e *Engine) localDecision(t *model.Task, d *model.IoTDevice, fallback string) model.OffloadingDecision {
	return model.LocalDecision(d.EstimateLocalExecutionTime(t), t.LocalEnergy(d.CPUPowerW()), fallback)
}

func (e *Engine) uavDecision(t *model.Task, d *model.IoTDevice, u *model.UAV, fallback string) model.OffloadingDecision {
	latency := d.EstimateTotalOffloadingTime(t, u)
	energy := d.CalculateOffloadingEnergy(t, u) + model.ProcessingEnergy(t)
	return model.UAVDecision(u, latency, energy, fallback)
}

// RecordExperience stores the outcome of a decision. Every RetrainEvery
// experiences a refit is requested from the trainer without blocking.
func (e *Engine) RecordExperience(obs Observation, reward float64) {
	n := e.buffer.Add(Experience{Features: obs.Features, Action: obs.Action, Reward: reward})
	if e.cfg.RetrainEvery > 0 && n%int64(e.cfg.RetrainEvery) == 0 {
		select {
		case e.retrainCh <- struct{}{}:
		default:
		}
	}
}

// Reset clears learned experience. The current scorer is kept.
func (e *Engine) Reset() {
	e.buffer.Reset()
	select {
	case <-e.retrainCh:
	default:
	}
}
