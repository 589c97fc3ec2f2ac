// Package bridge is the host boundary of the daemon: an HTTP server speaking
// the {type, payload} message protocol. State flows out over an SSE stream,
// commands come in over POST. Only origin-validated requests are served.
package bridge

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lockhaven/paywalld/global"
	"github.com/lockhaven/paywalld/paywall"
)

type (
	Environment interface {
		global.PaywallGlobal
	}

	// Synchronizer is what the bridge needs from the state synchronizer
	Synchronizer interface {
		Snapshot() *paywall.Snapshot
		PurchaseKey(lockAddress, amountToSend, erc20Address string)
	}

	// SnapshotCache optionally serves the last persisted snapshot to new
	// subscribers before live data arrives
	SnapshotCache interface {
		Load(network int, account string) *paywall.Snapshot
	}

	Server struct {
		Environment
		cfg    *paywall.Config
		sync   Synchronizer
		cache  SnapshotCache
		server *http.Server

		mutex       sync.RWMutex
		subscribers map[chan Message]struct{}

		metrics bridgeMetrics
	}

	Params struct {
		Addr           string
		AllowedOrigins []string
		Config         *paywall.Config
		Synchronizer   Synchronizer
		Cache          SnapshotCache // nil disables cached first paint
	}
)

const (
	Name = "bridge"

	// buffered per subscriber; a subscriber too slow to drain loses the
	// connection rather than jamming the broadcast
	subscriberBufferSize = 16
)

func New(env Environment, par Params) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), allowedOrigin(par.AllowedOrigins))

	srv := &Server{
		Environment: env,
		cfg:         par.Config,
		sync:        par.Synchronizer,
		cache:       par.Cache,
		subscribers: make(map[chan Message]struct{}),
		server: &http.Server{
			Addr:              par.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	engine.POST("/message", srv.messageHandler)
	engine.GET("/updates", srv.updatesHandler)
	engine.GET("/snapshot", srv.snapshotHandler)
	srv.registerMetrics()
	return srv
}

func (srv *Server) Start() {
	srv.MarkWorkProcessStarted(Name)
	go func() {
		srv.Log().Infof("[%s] listening on %s", Name, srv.server.Addr)
		if err := srv.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.Log().Errorf("[%s] server: %v", Name, err)
		}
	}()
	go func() {
		<-srv.Ctx().Done()
		_ = srv.server.Close()
		srv.closeSubscribers()
		srv.MarkWorkProcessStopped(Name)
	}()
}

// PublishSnapshot fans the snapshot out to all subscribers as the protocol's
// update messages plus the derived page-state signal
func (srv *Server) PublishSnapshot(snap *paywall.Snapshot) {
	srv.broadcast(snapshotMessages(snap, srv.cfg.LockAddresses())...)
	srv.metrics.snapshotsPublished.Inc()
}

func (srv *Server) PublishError(err error) {
	srv.broadcast(Message{Type: MsgError, Payload: err.Error()})
	srv.metrics.errorsPublished.Inc()
}

func snapshotMessages(snap *paywall.Snapshot, lockAddresses []string) []Message {
	nowis := time.Now()
	ret := []Message{
		{Type: MsgUpdateNetwork, Payload: snap.Network},
		{Type: MsgUpdateAccount, Payload: snap.Account},
		{Type: MsgUpdateAccountBalance, Payload: snap.Balance},
		{Type: MsgUpdateLocks, Payload: snap.Locks},
	}
	switch paywall.ResolvePageStatus(snap.Keys, lockAddresses, nowis) {
	case paywall.PageLocked:
		ret = append(ret, Message{Type: MsgLocked})
	case paywall.PageUnlocked:
		ret = append(ret, Message{Type: MsgUnlocked, Payload: paywall.UnlockedLocks(snap.Keys, nowis)})
	}
	return ret
}

func (srv *Server) messageHandler(c *gin.Context) {
	var msg inboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}
	srv.metrics.messagesIn.Inc()

	switch msg.Type {
	case MsgConfig:
		c.JSON(http.StatusOK, Message{Type: MsgConfig, Payload: srv.cfg})

	case MsgPurchaseKey:
		var par purchaseKeyPayload
		if err := json.Unmarshal(msg.Payload, &par); err != nil || par.Lock == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchaseKey payload"})
			return
		}
		srv.sync.PurchaseKey(par.Lock, par.AmountToSend, par.ERC20Address)
		c.JSON(http.StatusOK, Message{Type: MsgReady})

	case MsgSendUpdates:
		if snap := srv.sync.Snapshot(); snap != nil {
			srv.PublishSnapshot(snap)
		}
		c.JSON(http.StatusOK, Message{Type: MsgReady})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
	}
}

func (srv *Server) snapshotHandler(c *gin.Context) {
	snap := srv.sync.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (srv *Server) updatesHandler(c *gin.Context) {
	ch := srv.subscribe()
	defer srv.unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// new subscribers get something to render right away: the live snapshot
	// when present, the cached one otherwise
	first := srv.sync.Snapshot()
	if first == nil && srv.cache != nil {
		if cfg := srv.cfg; cfg != nil {
			first = srv.cache.Load(cfg.DefaultNetwork, "")
		}
	}
	c.SSEvent(MsgReady, nil)
	if first != nil {
		for _, msg := range snapshotMessages(first, srv.cfg.LockAddresses()) {
			c.SSEvent(msg.Type, msg.Payload)
		}
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(msg.Type, msg.Payload)
			return true
		case <-c.Request.Context().Done():
			return false
		case <-srv.Ctx().Done():
			return false
		}
	})
}

func (srv *Server) subscribe() chan Message {
	ch := make(chan Message, subscriberBufferSize)
	srv.mutex.Lock()
	srv.subscribers[ch] = struct{}{}
	srv.metrics.subscribers.Inc()
	srv.mutex.Unlock()
	return ch
}

func (srv *Server) unsubscribe(ch chan Message) {
	srv.mutex.Lock()
	if _, ok := srv.subscribers[ch]; ok {
		delete(srv.subscribers, ch)
		srv.metrics.subscribers.Dec()
	}
	srv.mutex.Unlock()
}

func (srv *Server) broadcast(msgs ...Message) {
	srv.mutex.RLock()
	defer srv.mutex.RUnlock()

	for ch := range srv.subscribers {
		for _, msg := range msgs {
			select {
			case ch <- msg:
			default:
				// slow subscriber, drop the message
				srv.metrics.dropped.Inc()
			}
		}
	}
}

func (srv *Server) closeSubscribers() {
	srv.mutex.Lock()
	defer srv.mutex.Unlock()

	for ch := range srv.subscribers {
		close(ch)
		delete(srv.subscribers, ch)
	}
}
