// Package metrics declares the Prometheus collectors for the serving layer.
// Metric names match the dashboards that scrape them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PredictionsTotal counts successful predictions by predicted class.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictions_total",
		Help: "Total number of successful predictions.",
	}, []string{"predicted_class"})

	// PredictionErrorsTotal counts failed predict requests.
	PredictionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prediction_errors_total",
		Help: "Total number of prediction errors.",
	})

	// PredictionLatency tracks request latency with directly queryable
	// p50/p95/p99 quantiles.
	PredictionLatency = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "prediction_latency_seconds",
		Help: "Prediction latency in seconds.",
		Objectives: map[float64]float64{
			0.5:  0.05,
			0.95: 0.01,
			0.99: 0.001,
		},
	})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
