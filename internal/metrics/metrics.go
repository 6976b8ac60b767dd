// Package metrics records pipeline counters on a private Prometheus
// registry. Recording is always safe; exporting is optional and happens
// once per run, either to a node-exporter textfile or to a Pushgateway.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/sells-group/soil-etl/internal/resilience"
)

var (
	registry = prometheus.NewRegistry()

	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soil_etl_rows_total",
			Help: "Rows produced per pipeline stage.",
		},
		[]string{"stage"},
	)
	duplicatesRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soil_etl_duplicates_removed_total",
			Help: "Duplicate rows removed, partitioned by the collection being deduplicated.",
		},
		[]string{"table"},
	)
	parseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soil_etl_parse_failures_total",
			Help: "Encodings that could not be parsed, partitioned by parse mode.",
		},
		[]string{"mode"},
	)
	nullDates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soil_etl_null_dates_total",
			Help: "Dates mapped to the null-date sentinel.",
		},
	)
	unresolvedKeys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soil_etl_unresolved_keys_total",
			Help: "Foreign keys left null because the lookup found no match.",
		},
		[]string{"key"},
	)
	stepDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "soil_etl_step_duration_seconds",
			Help:       "Duration of pipeline steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step"},
	)
)

func init() {
	registry.MustRegister(rowsTotal, duplicatesRemoved, parseFailures, nullDates, unresolvedKeys, stepDuration)
}

// Registry exposes the registry for tests and custom exporters.
func Registry() *prometheus.Registry { return registry }

// AddRows counts rows emitted by a stage.
func AddRows(stage string, n int) {
	if n > 0 {
		rowsTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// AddDuplicates counts duplicate rows removed from a collection.
func AddDuplicates(table string, n int) {
	if n > 0 {
		duplicatesRemoved.WithLabelValues(table).Add(float64(n))
	}
}

// IncParseFailure counts one unparsable encoding.
func IncParseFailure(mode string) {
	parseFailures.WithLabelValues(mode).Inc()
}

// AddNullDates counts dates mapped to the null-date sentinel.
func AddNullDates(n int) {
	if n > 0 {
		nullDates.Add(float64(n))
	}
}

// AddUnresolved counts foreign keys that could not be resolved.
func AddUnresolved(key string, n int) {
	if n > 0 {
		unresolvedKeys.WithLabelValues(key).Add(float64(n))
	}
}

// ObserveStep records how long a step took.
func ObserveStep(step string, d time.Duration) {
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}

// Push sends the registry to a Prometheus Pushgateway under the given job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return eris.New("metrics: pushgateway URL is required")
	}
	if job == "" {
		job = "soil-etl"
	}
	pusher := push.New(gatewayURL, job).Gatherer(registry)
	if err := resilience.Do(ctx, resilience.DefaultPolicy(), "metrics push", pusher.PushContext); err != nil {
		return eris.Wrap(err, "metrics: push")
	}
	return nil
}
