package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports sandbox runs and grading results as Prometheus metrics.
type PrometheusRecorder struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	grades        *prometheus.CounterVec
	gradeScore    *prometheus.HistogramVec
	gradeDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quizsys",
				Name:      "sandbox_runs_total",
				Help:      "Total number of sandboxed program runs",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quizsys",
				Name:      "sandbox_run_duration_seconds",
				Help:      "Wall-clock duration of sandboxed program runs",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),
		grades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quizsys",
				Name:      "grades_total",
				Help:      "Total number of graded responses",
			},
			[]string{"type"},
		),
		gradeScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quizsys",
				Name:      "grade_score",
				Help:      "Fractional score of graded responses",
				Buckets:   []float64{0, 0.25, 0.5, 0.75, 1},
			},
			[]string{"type"},
		),
		gradeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quizsys",
				Name:      "grade_duration_seconds",
				Help:      "Duration of grading one response",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30},
			},
			[]string{"type"},
		),
	}
	for _, c := range []prometheus.Collector{r.runs, r.runDuration, r.grades, r.gradeScore, r.gradeDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveRun(_ context.Context, outcome string, duration time.Duration) {
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveGrade(_ context.Context, questionType string, score float64, duration time.Duration) {
	r.grades.WithLabelValues(questionType).Inc()
	r.gradeScore.WithLabelValues(questionType).Observe(score)
	r.gradeDuration.WithLabelValues(questionType).Observe(duration.Seconds())
}
