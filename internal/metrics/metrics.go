package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/model-graveyard/internal/models"
	"github.com/miradorstack/model-graveyard/internal/utils"
)

const (
	// ModeProbe labels runs that invoked the probe command.
	ModeProbe = "probe"
	// ModeSimulate labels runs that used the simulator.
	ModeSimulate = "simulate"
)

var (
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "model_graveyard",
			Name:      "probes_total",
			Help:      "Total number of model probes, partitioned by resulting status.",
		},
		[]string{"status"},
	)

	probeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "model_graveyard",
			Name:      "probe_seconds",
			Help:      "Wall-clock duration of a single model probe in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "model_graveyard",
			Name:      "runs_total",
			Help:      "Total number of refresh runs, partitioned by mode.",
		},
		[]string{"mode"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "model_graveyard",
			Name:      "run_seconds",
			Help:      "Refresh run latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)

	recordsBySeverity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "model_graveyard",
			Name:      "records",
			Help:      "Roster records in the current snapshot, partitioned by severity.",
		},
		[]string{"severity"},
	)

	snapshotGeneratedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "model_graveyard",
			Name:      "snapshot_generated_timestamp_seconds",
			Help:      "Unix time at which the current snapshot was generated.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "model_graveyard",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, partitioned by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register attaches model-graveyard collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		probesTotal,
		probeDurationSeconds,
		runsTotal,
		runDurationSeconds,
		recordsBySeverity,
		snapshotGeneratedSeconds,
		httpRequestsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ProbeObserver feeds orchestrator callbacks into the probe collectors.
type ProbeObserver struct{}

// ObserveProbe records one probe's status and duration.
func (ProbeObserver) ObserveProbe(_ string, outcome models.ProbeOutcome, duration time.Duration) {
	probesTotal.WithLabelValues(outcome.Status).Inc()
	if duration < 0 {
		duration = 0
	}
	probeDurationSeconds.Observe(duration.Seconds())
}

// ObserveRun records a refresh run and resets the severity gauge to snapshot.
func ObserveRun(mode string, duration time.Duration, snapshot models.StatusSnapshot) {
	if mode != ModeSimulate {
		mode = ModeProbe
	}
	runsTotal.WithLabelValues(mode).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
	ObserveSnapshot(snapshot)
}

// ObserveSnapshot sets the severity and generation gauges from snapshot. An
// unparsable generated_at leaves the generation gauge untouched.
func ObserveSnapshot(snapshot models.StatusSnapshot) {
	if generated, err := utils.ParseTimestamp(snapshot.GeneratedAt); err == nil {
		snapshotGeneratedSeconds.Set(float64(generated.Unix()))
	}
	counts := snapshot.Counts()
	recordsBySeverity.WithLabelValues(string(models.SeverityOK)).Set(float64(counts.OK))
	recordsBySeverity.WithLabelValues(string(models.SeverityWarn)).Set(float64(counts.Warn))
	recordsBySeverity.WithLabelValues(string(models.SeverityError)).Set(float64(counts.Error))
	recordsBySeverity.WithLabelValues(string(models.SeverityCritical)).Set(float64(counts.Critical))
}

// ObserveHTTPRequest counts one served request.
func ObserveHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
