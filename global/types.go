package global

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type (
	Logging interface {
		Log() *zap.SugaredLogger
		Tracef(tag string, format string, args ...any)
		Assertf(cond bool, format string, args ...any)
		AssertNoError(err error, prefix ...string)
	}

	StartStop interface {
		Ctx() context.Context
		Stop()
		MarkWorkProcessStarted(name string)
		MarkWorkProcessStopped(name string)
		MustWaitAllWorkProcessesStop(timeout ...time.Duration)
		RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool)
	}

	Metrics interface {
		MetricsRegistry() *prometheus.Registry
	}

	// PaywallGlobal is the environment interface every component embeds
	PaywallGlobal interface {
		Logging
		StartStop
		Metrics
	}
)
