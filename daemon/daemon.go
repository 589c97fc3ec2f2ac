// Package daemon wires the whole thing together: configuration, the chain
// gateway clients, the state synchronizer, the purchase saga, the bridge
// server, the snapshot cache and metrics exposure, with a clean stop path.
package daemon

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/lockhaven/paywalld/bridge"
	"github.com/lockhaven/paywalld/cache"
	"github.com/lockhaven/paywalld/chain/remote"
	"github.com/lockhaven/paywalld/core/purchase"
	"github.com/lockhaven/paywalld/core/tracker"
	"github.com/lockhaven/paywalld/global"
	"github.com/lockhaven/paywalld/history"
	"github.com/lockhaven/paywalld/metrics"
	"github.com/lockhaven/paywalld/payment"
	"github.com/lockhaven/paywalld/paywall"
	"github.com/lockhaven/paywalld/records"
	"github.com/lockhaven/paywalld/util"
)

type Daemon struct {
	*global.Global
	cfg       *paywall.Config
	chainClt  *remote.Client
	tracker   *tracker.Tracker
	saga      *purchase.Saga
	bridge    *bridge.Server
	snapCache *cache.SnapshotCache
	recStore  *records.Store
	stopOnce  sync.Once
	started   time.Time
}

func New() *Daemon {
	return &Daemon{
		Global:  global.NewFromConfig(),
		started: time.Now(),
	}
}

func (d *Daemon) readInTraceTags() {
	d.StartTracingTags(viper.GetStringSlice("trace_tags")...)
}

func (d *Daemon) Start() {
	d.Log().Info(global.BannerString())
	d.readInTraceTags()

	err := util.CatchPanicOrError(func() error {
		d.initConfig()
		d.initCache()
		d.initRecords()
		d.initChainClients()
		d.startTracker()
		d.startSaga()
		d.startBridge()
		metrics.Start(d)
		return nil
	})
	if err != nil {
		d.Log().Errorf("error on startup: %v", err)
		os.Exit(1)
	}
	d.Log().Infof("paywall daemon has been started successfully")

	d.RepeatInBackground("memstats", 10*time.Second, func() bool {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		d.Log().Infof("uptime: %v, allocated memory: %.1f MB, goroutines: %d",
			time.Since(d.started).Round(time.Second),
			float32(memStats.Alloc*10/(1024*1024))/10,
			runtime.NumGoroutine(),
		)
		return true
	}, true)
}

func (d *Daemon) initConfig() {
	cfg, err := paywall.ConfigFromViper()
	d.AssertNoError(err, "initConfig")
	d.cfg = cfg
	d.Log().Infof("tracking %d lock(s) on network %d", len(cfg.LockAddresses()), cfg.DefaultNetwork)
}

func (d *Daemon) initCache() {
	dir := viper.GetString("cache.directory")
	if dir == "" {
		d.Log().Infof("snapshot cache is disabled")
		return
	}
	d.snapCache = cache.MustOpen(dir, d.Log())
	d.Log().Infof("snapshot cache opened at '%s'", dir)
}

func (d *Daemon) initRecords() {
	dsn := viper.GetString("records.dsn")
	if dsn == "" {
		d.Log().Infof("payment records are disabled")
		return
	}
	store, err := records.Open(dsn)
	d.AssertNoError(err, "initRecords")
	d.recStore = store
	d.Log().Infof("payment records DB connected")
}

func (d *Daemon) initChainClients() {
	endpoint := viper.GetString("chain.gateway")
	d.Assertf(endpoint != "", "chain.gateway must be configured")
	d.chainClt = remote.New(d.Ctx(), endpoint, d.Log())
}

func (d *Daemon) startTracker() {
	var hist *history.Client
	if endpoint := viper.GetString("history.endpoint"); endpoint != "" {
		hist = history.New(endpoint)
	}
	d.tracker = tracker.New(d, tracker.Params{
		Config:  d.cfg,
		Reader:  d.chainClt.Reader(),
		Writer:  d.chainClt.Writer(),
		History: hist,
		EmitChanges: func(snap *paywall.Snapshot) {
			if d.snapCache != nil {
				d.snapCache.Store(snap)
			}
			if d.bridge != nil {
				d.bridge.PublishSnapshot(snap)
			}
		},
		EmitError: func(err error) {
			d.Log().Warnf("[tracker] %v", err)
			if d.bridge != nil {
				d.bridge.PublishError(err)
			}
		},
		OnAllKeys: func(batch map[string]*paywall.Key) {
			// until every configured lock has answered, snapshots can only
			// carry the inconclusive page state. Re-publish once the last
			// answer is in so subscribers get the decisive locked/unlocked
			// signal right away.
			d.Log().Infof("[tracker] all %d configured lock(s) answered", len(batch))
			if d.bridge != nil {
				if snap := d.tracker.Snapshot(); snap != nil {
					d.bridge.PublishSnapshot(snap)
				}
			}
		},
	})
	d.tracker.Start()
}

func (d *Daemon) startSaga() {
	if d.recStore == nil {
		d.Log().Infof("purchase saga is disabled: no records DB")
		return
	}
	gatewayURL := viper.GetString("payment.endpoint")
	dispatcherURL := viper.GetString("payment.dispatcher")
	if gatewayURL == "" || dispatcherURL == "" {
		d.Log().Infof("purchase saga is disabled: payment endpoints not configured")
		return
	}
	d.saga = purchase.New(d, purchase.Params{
		Gateway:    payment.NewClient(gatewayURL, viper.GetString("payment.api_key")),
		Records:    d.recStore,
		Dispatcher: remote.NewDispatcher(dispatcherURL),
		LockState: func(lockAddress string) *paywall.Lock {
			snap := d.tracker.Snapshot()
			if snap == nil {
				return nil
			}
			return snap.Locks[lockAddress]
		},
	})
}

// Saga returns nil when the payment side is not configured
func (d *Daemon) Saga() *purchase.Saga {
	return d.saga
}

func (d *Daemon) startBridge() {
	addr := viper.GetString("bridge.listen")
	if addr == "" {
		addr = ":8555"
	}
	var snapCache bridge.SnapshotCache
	if d.snapCache != nil {
		snapCache = d.snapCache
	}
	d.bridge = bridge.New(d, bridge.Params{
		Addr:           addr,
		AllowedOrigins: viper.GetStringSlice("bridge.allowed_origins"),
		Config:         d.cfg,
		Synchronizer:   d.tracker,
		Cache:          snapCache,
	})
	d.bridge.Start()
}

// WaitAllWorkProcessesToStop blocks until the global context is closed and
// every registered work process has deregistered
func (d *Daemon) WaitAllWorkProcessesToStop(timeout time.Duration) {
	<-d.Ctx().Done()
	d.Log().Infof("waiting all processes to stop for up to %v", timeout)
	d.MustWaitAllWorkProcessesStop(timeout)
	d.stopOnce.Do(func() {
		if d.snapCache != nil {
			d.snapCache.Close()
		}
	})
}
