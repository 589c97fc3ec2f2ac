package bridge

import "github.com/prometheus/client_golang/prometheus"

type bridgeMetrics struct {
	messagesIn         prometheus.Counter
	snapshotsPublished prometheus.Counter
	errorsPublished    prometheus.Counter
	dropped            prometheus.Counter
	subscribers        prometheus.Gauge
}

func (srv *Server) registerMetrics() {
	srv.metrics.messagesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_bridge_messages_in",
		Help: "inbound boundary messages accepted",
	})
	srv.metrics.snapshotsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_bridge_snapshots_published",
		Help: "snapshots fanned out to subscribers",
	})
	srv.metrics.errorsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_bridge_errors_published",
		Help: "error messages fanned out to subscribers",
	})
	srv.metrics.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_bridge_dropped_messages",
		Help: "messages dropped on slow subscribers",
	})
	srv.metrics.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paywalld_bridge_subscribers",
		Help: "currently connected update subscribers",
	})
	srv.MetricsRegistry().MustRegister(
		srv.metrics.messagesIn,
		srv.metrics.snapshotsPublished,
		srv.metrics.errorsPublished,
		srv.metrics.dropped,
		srv.metrics.subscribers,
	)
}
