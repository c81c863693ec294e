// Package metrics 动作执行与 campaign 运行的 Prometheus 指标
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 所有方法在 nil 接收者上都是空操作
type Metrics struct {
	actions       *prometheus.CounterVec
	actionLatency *prometheus.HistogramVec
	snapshotNodes prometheus.Histogram
	runs          *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	activeRuns    prometheus.Gauge
}

// New 创建并注册指标;reg 为 nil 时使用默认 registry。
// 已注册过的同名指标会被复用,便于在测试中多次构造。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resquared",
			Subsystem: "executor",
			Name:      "actions_total",
			Help:      "Actions executed against the live page, by kind and outcome.",
		}, []string{"kind", "status", "reason"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resquared",
			Subsystem: "executor",
			Name:      "action_duration_seconds",
			Help:      "Time spent executing one action including settle delays.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		}, []string{"kind"}),
		snapshotNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resquared",
			Subsystem: "snapshot",
			Name:      "nodes",
			Help:      "Number of node records per snapshot.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resquared",
			Subsystem: "campaign",
			Name:      "runs_total",
			Help:      "Finished campaign runs by final status.",
		}, []string{"status"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resquared",
			Subsystem: "campaign",
			Name:      "fallbacks_total",
			Help:      "Scripted fallback attempts by outcome.",
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "resquared",
			Subsystem: "campaign",
			Name:      "active_runs",
			Help:      "Campaign runs currently holding a browser session.",
		}),
	}

	m.actions = register(reg, m.actions)
	m.actionLatency = register(reg, m.actionLatency)
	m.snapshotNodes = register(reg, m.snapshotNodes)
	m.runs = register(reg, m.runs)
	m.fallbacks = register(reg, m.fallbacks)
	m.activeRuns = register(reg, m.activeRuns)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveAction 记录一次动作结果
func (m *Metrics) ObserveAction(kind, status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, status, reason).Inc()
	m.actionLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveSnapshot(nodes int) {
	if m == nil {
		return
	}
	m.snapshotNodes.Observe(float64(nodes))
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) Fallback(status string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(status).Inc()
}
