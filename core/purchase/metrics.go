package purchase

import "github.com/prometheus/client_golang/prometheus"

type sagaMetrics struct {
	intentsCreated  prometheus.Counter
	captures        prometheus.Counter
	captureFailures prometheus.Counter
	rejections      prometheus.Counter
}

func (s *Saga) registerMetrics() {
	s.metrics.intentsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_purchase_intents_created",
		Help: "payment intents created",
	})
	s.metrics.captures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_purchase_captures",
		Help: "payments captured after grant broadcast",
	})
	s.metrics.captureFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_purchase_capture_failures",
		Help: "grant or capture failures",
	})
	s.metrics.rejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paywalld_purchase_rejections",
		Help: "purchases rejected by a precondition",
	})
	s.MetricsRegistry().MustRegister(
		s.metrics.intentsCreated,
		s.metrics.captures,
		s.metrics.captureFailures,
		s.metrics.rejections,
	)
}
