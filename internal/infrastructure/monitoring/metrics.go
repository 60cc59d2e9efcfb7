package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ImportMetrics struct {
	RowsProcessed *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec
	WarningsTotal prometheus.Counter
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

var (
	Import = ImportMetrics{
		RowsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_migrator_rows_processed_total",
				Help: "Total number of source rows read per export file.",
			},
			[]string{"file"},
		),
		RowsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_migrator_rows_skipped_total",
				Help: "Total number of rows skipped, by reason.",
			},
			[]string{"file", "reason"},
		),
		WarningsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_migrator_warnings_total",
				Help: "Total number of warning lines emitted during imports.",
			},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_migrator_db_query_duration_seconds",
				Help:    "Histogram of storage query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}
)

func RecordRowProcessed(file string) {
	Import.RowsProcessed.WithLabelValues(file).Inc()
}

func RecordRowSkipped(file, reason string) {
	Import.RowsSkipped.WithLabelValues(file, reason).Inc()
}

func RecordWarning() {
	Import.WarningsTotal.Inc()
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}
