package server

import (
	stdErrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ormcore/data/orm"
)

const (
	namespace = "ormcore"
	subsystem = "orm"
)

// 写入结果标签
const (
	OutcomeNoop     = "noop"
	OutcomeUpdated  = "updated"
	OutcomeInserted = "inserted"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var metricLabels = []string{"model", "outcome"}

// Metrics 部分更新的计数与耗时
type Metrics struct {
	writes   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册指标，reg 为 nil 时使用默认注册表；重复注册时复用已有的收集器
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "writes_total",
		Help:      "Counter of entity writes by model and outcome.",
	}, metricLabels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "write_duration_seconds",
		Help:      "Bucketed histogram of entity write duration (s).",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, metricLabels)

	c, err := register(reg, writes)
	if err != nil {
		return nil, err
	}
	h, err := register(reg, duration)
	if err != nil {
		return nil, err
	}
	return &Metrics{writes: c.(*prometheus.CounterVec), duration: h.(*prometheus.HistogramVec)}, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stdErrors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) report(model, outcome string, start time.Time) {
	if m == nil || model == "" {
		return
	}
	m.writes.WithLabelValues(model, outcome).Inc()
	if !start.IsZero() {
		m.duration.WithLabelValues(model, outcome).Observe(time.Since(start).Seconds())
	}
}

// outcomeOf 按错误分类结果标签
func outcomeOf(err error, fallback string) string {
	switch {
	case err == nil:
		return fallback
	case stdErrors.Is(err, orm.ErrVersionConflict):
		return OutcomeConflict
	case stdErrors.Is(err, orm.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
