package metrics

import (
	"github.com/sebadal-solar/fusionsolar2json/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	NAMESPACE = "fusionsolar"

	RESULT_OK    = "ok"
	RESULT_ERROR = "error"
)

// Metrics holds the collectors fed by poll cycle results. Each instance owns
// its registry so tests and the server do not share global state.
type Metrics struct {
	Registry *prometheus.Registry

	power               *prometheus.GaugeVec
	ratio               *prometheus.GaugeVec
	energy              *prometheus.GaugeVec
	batterySoc          prometheus.Gauge
	cycles              *prometheus.CounterVec
	cycleDuration       prometheus.Histogram
	consecutiveFailures prometheus.Gauge
	lastSuccess         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "power_kw",
			Help:      "Reconciled power flows of the monitored station in kW.",
		}, []string{"flow"}),
		ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "ratio",
			Help:      "Self use and autonomy ratios, 0 to 1.",
		}, []string{"kind"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "energy_kwh",
			Help:      "Fleet energy counters in kWh.",
		}, []string{"period"}),
		batterySoc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "battery_soc_percent",
			Help:      "Battery state of charge.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll cycles.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "poll_consecutive_failures",
			Help:      "Failed poll cycles since the last success.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll cycle.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.power, m.ratio, m.energy, m.batterySoc,
		m.cycles, m.cycleDuration, m.consecutiveFailures, m.lastSuccess,
	)
	return m
}

// Observe records one poll cycle. Gauges keep the last good values when the
// cycle failed.
func (m *Metrics) Observe(r domain.PollCycleResult) {
	m.cycleDuration.Observe(r.Duration.Seconds())
	if !r.Ok() {
		m.cycles.WithLabelValues(RESULT_ERROR).Inc()
		m.consecutiveFailures.Inc()
		return
	}
	m.cycles.WithLabelValues(RESULT_OK).Inc()
	m.consecutiveFailures.Set(0)

	pb := r.Balance
	m.power.WithLabelValues("solar").Set(pb.SolarKw)
	m.power.WithLabelValues("fleet").Set(pb.FleetPowerKw)
	m.power.WithLabelValues("load").Set(pb.LoadKw)
	m.power.WithLabelValues("self_use").Set(pb.SelfUseKw)
	m.power.WithLabelValues("grid_import").Set(pb.GridImportKw)
	m.power.WithLabelValues("grid_export").Set(pb.GridExportKw)
	m.power.WithLabelValues("battery").Set(pb.BatteryKw)
	m.ratio.WithLabelValues("self_use").Set(pb.SelfUseRatio)
	m.ratio.WithLabelValues("autonomy").Set(pb.AutonomyRatio)
	m.energy.WithLabelValues("today").Set(pb.EnergyTodayKwh)
	m.energy.WithLabelValues("total").Set(pb.EnergyTotalKwh)
	m.batterySoc.Set(pb.BatterySocPercent)
	m.lastSuccess.Set(float64(pb.Timestamp.Unix()))
}
