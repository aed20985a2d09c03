package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

// SimCollector mirrors simulation state into Prometheus series. Counters of
// the metrics package are exported as gauges because a re-initialised run
// starts them from zero again.
type SimCollector struct {
	gatherer prometheus.Gatherer

	StepDuration prometheus.Histogram
	Steps        prometheus.Counter
	SimTime      prometheus.Gauge
	PendingTasks prometheus.Gauge

	Tasks     *prometheus.GaugeVec // outcome
	Decisions *prometheus.GaugeVec // kind
	Energy    *prometheus.GaugeVec // source
	Retrains  prometheus.Gauge

	UAVEnergy *prometheus.GaugeVec // uav
	UAVLoad   *prometheus.GaugeVec // uav
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &SimCollector{gatherer: gathererFor(reg)}
	var err error

	if c.StepDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_step_duration_seconds",
		Help:    "Wall time spent in one simulation step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "sim_step_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Steps, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_steps_total",
		Help: "Total number of simulation steps taken by this process.",
	}), "sim_steps_total"); err != nil {
		return nil, err
	}
	if c.SimTime, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_time_seconds",
		Help: "Current simulated clock.",
	}), "sim_time_seconds"); err != nil {
		return nil, err
	}
	if c.PendingTasks, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_pending_tasks",
		Help: "Tasks queued or in flight on a UAV.",
	}), "sim_pending_tasks"); err != nil {
		return nil, err
	}
	if c.Tasks, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_tasks",
		Help: "Tasks in the current run, labeled by outcome.",
	}, []string{"outcome"}), "sim_tasks"); err != nil {
		return nil, err
	}
	if c.Decisions, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_offloading_decisions",
		Help: "Placement decisions in the current run, labeled by executed target kind.",
	}, []string{"kind"}), "sim_offloading_decisions"); err != nil {
		return nil, err
	}
	if c.Energy, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_energy_joules",
		Help: "Energy consumed in the current run, labeled by source.",
	}, []string{"source"}), "sim_energy_joules"); err != nil {
		return nil, err
	}
	if c.Retrains, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_policy_retrains",
		Help: "Policy refits completed in the current run.",
	}), "sim_policy_retrains"); err != nil {
		return nil, err
	}
	if c.UAVEnergy, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_uav_energy_ratio",
		Help: "Remaining UAV energy as a fraction of capacity.",
	}, []string{"uav"}), "sim_uav_energy_ratio"); err != nil {
		return nil, err
	}
	if c.UAVLoad, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_uav_load_ratio",
		Help: "Fraction of UAV CPU capacity reserved by assigned tasks.",
	}, []string{"uav"}), "sim_uav_load_ratio"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Observe records one step together with the snapshots taken after it.
func (c *SimCollector) Observe(info core.StepInfo, s metrics.Snapshot, uavs []model.UAVSnapshot) {
	if c == nil {
		return
	}
	c.StepDuration.Observe(info.Elapsed.Seconds())
	c.Steps.Inc()
	c.SimTime.Set(info.Time)
	c.PendingTasks.Set(float64(info.Pending))

	c.Tasks.WithLabelValues("created").Set(float64(s.TotalTasks))
	c.Tasks.WithLabelValues("completed").Set(float64(s.CompletedTasks))
	c.Tasks.WithLabelValues("failed").Set(float64(s.FailedTasks))
	c.Tasks.WithLabelValues("dropped").Set(float64(s.DroppedTasks))
	for kind, n := range s.Decisions {
		c.Decisions.WithLabelValues(kind).Set(float64(n))
	}
	c.Energy.WithLabelValues("device").Set(s.DeviceEnergyJ)
	c.Energy.WithLabelValues("uav").Set(s.UAVEnergyJ)
	c.Retrains.Set(float64(s.PolicyRetrains))

	for _, u := range uavs {
		c.UAVEnergy.WithLabelValues(u.ID).Set(u.EnergyPercentage / 100)
		c.UAVLoad.WithLabelValues(u.ID).Set(u.Load)
	}
}

// StepListener returns a listener that feeds the collector from env after
// every step.
func (c *SimCollector) StepListener(env *core.Environment) core.StepListener {
	return func(_ context.Context, info core.StepInfo) {
		c.Observe(info, env.Metrics(), env.UAVs())
	}
}
