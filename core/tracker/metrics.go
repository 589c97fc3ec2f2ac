package tracker

import "github.com/prometheus/client_golang/prometheus"

type trackerMetrics struct {
	readEvents  prometheus.Counter
	writeEvents prometheus.Counter
	merges      prometheus.Counter
	resets      prometheus.Counter
	rollbacks   prometheus.Counter
	readErrors  prometheus.Counter
	emissions   prometheus.Counter
}

func (t *Tracker) registerMetrics() {
	t.metrics.readEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_read_events",
		Help: "chain read events consumed",
	})
	t.metrics.writeEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_write_events",
		Help: "wallet write events consumed",
	})
	t.metrics.merges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_merges",
		Help: "lock and transaction record merges applied",
	})
	t.metrics.resets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_resets",
		Help: "full state resets on account or network change",
	})
	t.metrics.rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_rollbacks",
		Help: "submitted transactions rolled back on purchase failure",
	})
	t.metrics.readErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_read_errors",
		Help: "errors from the chain read service",
	})
	t.metrics.emissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_tracker_emissions",
		Help: "snapshots emitted to consumers",
	})
	t.MetricsRegistry().MustRegister(
		t.metrics.readEvents,
		t.metrics.writeEvents,
		t.metrics.merges,
		t.metrics.resets,
		t.metrics.rollbacks,
		t.metrics.readErrors,
		t.metrics.emissions,
	)
}
