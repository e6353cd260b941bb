package okapi

import "github.com/prometheus/client_golang/prometheus"

// Advisory engine counters; registered on the default registry so an
// embedding process can expose them alongside its own.
var (
	metricCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "okapi",
		Name:      "commits_total",
		Help:      "Successful transaction and batch commits.",
	})
	metricConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "okapi",
		Name:      "conflicts_total",
		Help:      "Commits rejected by watch-set validation.",
	})
	metricLiveTxns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "okapi",
		Name:      "transactions_live",
		Help:      "Transactions begun and not yet closed.",
	})
	metricReadTasks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "okapi",
		Name:      "read_tasks_total",
		Help:      "Point-read tasks dispatched.",
	})
	metricWriteTasks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "okapi",
		Name:      "write_tasks_total",
		Help:      "Write tasks dispatched.",
	})
	metricScanTasks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "okapi",
		Name:      "scan_tasks_total",
		Help:      "Scan tasks dispatched.",
	})
)

func init() {
	prometheus.MustRegister(
		metricCommits,
		metricConflicts,
		metricLiveTxns,
		metricReadTasks,
		metricWriteTasks,
		metricScanTasks,
	)
}
