package global

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lockhaven/paywalld/util"
	"github.com/lockhaven/paywalld/util/set"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Global struct {
	*zap.SugaredLogger
	ctx             context.Context
	stopFun         context.CancelFunc
	logStopOnce     *sync.Once
	stopOnce        *sync.Once
	components      set.Set[string]
	mutex           sync.RWMutex
	metricsRegistry *prometheus.Registry
	enabledTrace    atomic.Bool
	traceTagsMutex  sync.RWMutex
	traceTags       set.Set[string]
}

var _ PaywallGlobal = &Global{}

func NewFromConfig() *Global {
	lvl := zapcore.InfoLevel
	lvlStr := viper.GetString("logger.level")
	if lvlStr != "" {
		var err error
		lvl, err = zapcore.ParseLevel(lvlStr)
		util.AssertNoError(err)
	}

	output := []string{"stdout"}
	outStr := viper.GetString("logger.output")
	if outStr != "" {
		output = strings.Split(outStr, ",")
	}
	return _new(lvl, output)
}

func NewDefault() *Global {
	return _new(zapcore.DebugLevel, []string{"stdout"})
}

func _new(logLevel zapcore.Level, outputs []string) *Global {
	ctx, cancelFun := context.WithCancel(context.Background())
	ret := &Global{
		ctx:             ctx,
		stopFun:         cancelFun,
		SugaredLogger:   NewLogger("", logLevel, outputs, ""),
		traceTags:       set.New[string](),
		components:      set.New[string](),
		stopOnce:        &sync.Once{},
		logStopOnce:     &sync.Once{},
		metricsRegistry: prometheus.NewRegistry(),
	}
	return ret
}

func (l *Global) MetricsRegistry() *prometheus.Registry {
	return l.metricsRegistry
}

func (l *Global) MarkWorkProcessStarted(name string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	util.Assertf(!l.components.Contains(name), "duplicate work process '%s'", name)
	l.components.Insert(name)
}

func (l *Global) MarkWorkProcessStopped(name string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	util.Assertf(l.components.Contains(name), "unknown work process '%s'", name)
	l.components.Remove(name)
}

func (l *Global) Stop() {
	l.stopOnce.Do(func() {
		l.Log().Info("global STOP invoked..")
		l.stopFun()
	})
}

func (l *Global) Ctx() context.Context {
	return l.ctx
}

func (l *Global) _withAllWorkProcessesStopped(fun func()) {
	for {
		l.mutex.RLock()
		if len(l.components) == 0 {
			l.mutex.RUnlock()
			fun()
			return
		}
		l.mutex.RUnlock()
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *Global) MustWaitAllWorkProcessesStop(timeout ...time.Duration) {
	deadlineSet := len(timeout) > 0
	var deadline time.Time
	if deadlineSet {
		deadline = time.Now().Add(timeout[0])
	}
	done := make(chan struct{})
	go l._withAllWorkProcessesStopped(func() {
		close(done)
	})

	if !deadlineSet {
		<-done
		l.logAllStopped()
		return
	}
	select {
	case <-done:
		l.logAllStopped()
	case <-time.After(time.Until(deadline)):
		l.mutex.RLock()
		l.Log().Errorf("MustWaitAllWorkProcessesStop: timeout. Still running: %+v", l.components.AsList())
		l.mutex.RUnlock()
	}
}

func (l *Global) logAllStopped() {
	l.logStopOnce.Do(func() {
		l.Log().Info("all work processes stopped")
	})
}

// RepeatInBackground repeats closure until it returns false or the global
// context is closed
func (l *Global) RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool) {
	l.MarkWorkProcessStarted(name)
	go func() {
		defer l.MarkWorkProcessStopped(name)

		if len(skipFirst) == 0 || !skipFirst[0] {
			if !fun() {
				return
			}
		}
		for {
			select {
			case <-l.Ctx().Done():
				return
			case <-time.After(period):
				if !fun() {
					return
				}
			}
		}
	}()
}

func (l *Global) Log() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Global) Assertf(cond bool, format string, args ...any) {
	if !cond {
		l.SugaredLogger.Fatalf("assertion failed:: "+format, util.EvalLazyArgs(args...)...)
	}
}

func (l *Global) AssertNoError(err error, prefix ...string) {
	if err != nil {
		pref := "error: "
		if len(prefix) > 0 {
			pref = strings.Join(prefix, " ") + ": "
		}
		l.SugaredLogger.Fatalf(pref+"%v", err)
	}
}

func (l *Global) StartTracingTags(tags ...string) {
	l.traceTagsMutex.Lock()
	for _, t := range tags {
		for _, t1 := range strings.Split(t, ",") {
			l.traceTags.Insert(strings.TrimSpace(t1))
		}
		l.enabledTrace.Store(true)
	}
	l.traceTagsMutex.Unlock()

	for _, tag := range tags {
		l.Tracef(tag, "trace tag enabled")
	}
}

func (l *Global) StopTracingTag(tag string) {
	l.traceTagsMutex.Lock()
	defer l.traceTagsMutex.Unlock()

	l.traceTags.Remove(tag)
	if len(l.traceTags) == 0 {
		l.enabledTrace.Store(false)
	}
}

func (l *Global) Tracef(tag string, format string, args ...any) {
	if !l.enabledTrace.Load() {
		return
	}

	l.traceTagsMutex.RLock()
	defer l.traceTagsMutex.RUnlock()

	for _, t := range strings.Split(tag, ",") {
		if l.traceTags.Contains(t) {
			l.SugaredLogger.Infof("TRACE(%s) %s", t, fmt.Sprintf(format, util.EvalLazyArgs(args...)...))
			return
		}
	}
}
