// Package remote binds the chain.Reader and chain.Writer contracts to a
// wallet gateway service over HTTP. State reads are plain JSON endpoints,
// events arrive on a server-sent event stream and are decoded into the
// tagged event unions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lockhaven/paywalld/chain"
	"github.com/lockhaven/paywalld/paywall"
)

const (
	defaultClientTimeout = 7 * time.Second
	reconnectDelay       = 2 * time.Second
	eventBufferSize      = 16
)

type Client struct {
	c      http.Client
	prefix string
	log    *zap.SugaredLogger

	ready       atomic.Bool
	readEvents  chan chain.ReadEvent
	writeEvents chan chain.WriteEvent
}

func New(ctx context.Context, serverURL string, log *zap.SugaredLogger) *Client {
	ret := &Client{
		c:           http.Client{Timeout: defaultClientTimeout},
		prefix:      serverURL,
		log:         log.Named("[chain]"),
		readEvents:  make(chan chain.ReadEvent, eventBufferSize),
		writeEvents: make(chan chain.WriteEvent, eventBufferSize),
	}
	go ret.streamEvents(ctx)
	return ret
}

// ---------------------------------------- chain.Reader

func (c *Client) GetLock(ctx context.Context, address string) (*paywall.Lock, error) {
	var ret paywall.Lock
	if err := c.get(ctx, "/lock/"+address, &ret); err != nil {
		return nil, fmt.Errorf("GetLock: %w", err)
	}
	return &ret, nil
}

func (c *Client) GetKeyByLockForOwner(ctx context.Context, lockAddress, owner string) (*paywall.Key, error) {
	q := url.Values{}
	q.Set("lock", lockAddress)
	q.Set("owner", owner)
	var ret paywall.Key
	if err := c.get(ctx, "/key?"+q.Encode(), &ret); err != nil {
		return nil, fmt.Errorf("GetKeyByLockForOwner: %w", err)
	}
	return &ret, nil
}

func (c *Client) GetTransaction(ctx context.Context, hash string, defaults *paywall.Transaction) (*paywall.Transaction, error) {
	var ret paywall.Transaction
	err := c.get(ctx, "/transaction/"+hash, &ret)
	if err != nil {
		if defaults == nil {
			return nil, fmt.Errorf("GetTransaction: %w", err)
		}
		// a transaction the node has not seen yet falls back to the
		// caller-provided defaults
		ret = *defaults.Clone()
	}
	if ret.Hash == "" {
		ret.Hash = hash
	}
	return &ret, nil
}

func (c *Client) GetAddressBalance(ctx context.Context, address string) (string, error) {
	var ret struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, "/balance/"+address, &ret); err != nil {
		return "", fmt.Errorf("GetAddressBalance: %w", err)
	}
	return ret.Balance, nil
}

func (c *Client) GetTokenBalance(ctx context.Context, tokenContract, owner string) (string, error) {
	q := url.Values{}
	q.Set("contract", tokenContract)
	q.Set("owner", owner)
	var ret struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, "/tokenBalance?"+q.Encode(), &ret); err != nil {
		return "", fmt.Errorf("GetTokenBalance: %w", err)
	}
	return ret.Balance, nil
}

// ---------------------------------------- chain.Writer

func (c *Client) GetAccount(ctx context.Context) error {
	var ret struct {
		Account string `json:"account"`
	}
	if err := c.get(ctx, "/account", &ret); err != nil {
		return fmt.Errorf("GetAccount: %w", err)
	}
	c.writeEvents <- chain.AccountChanged{Address: ret.Account}
	return nil
}

func (c *Client) PurchaseKey(ctx context.Context, par chain.PurchaseParams) error {
	payload, err := json.Marshal(par)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.prefix+"/purchase", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("PurchaseKey: %w: %w", chain.ErrFailedToPurchaseKey, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("PurchaseKey: %w: from server: %s", chain.ErrFailedToPurchaseKey, resp.Status)
	}
	return nil
}

func (c *Client) Ready() bool {
	return c.ready.Load()
}

// Reader and Writer expose the two one-sided contracts of the same gateway
// connection. The interfaces both name their stream Events(), so each side
// needs its own view.

type (
	readerView struct{ *Client }
	writerView struct{ *Client }
)

func (c *Client) Reader() chain.Reader {
	return readerView{c}
}

func (c *Client) Writer() chain.Writer {
	return writerView{c}
}

func (v readerView) Events() <-chan chain.ReadEvent {
	return v.readEvents
}

func (v writerView) Events() <-chan chain.WriteEvent {
	return v.writeEvents
}

// ---------------------------------------- event stream

// streamEvents keeps one SSE subscription alive for the lifetime of ctx,
// reconnecting with a fixed delay
func (c *Client) streamEvents(ctx context.Context) {
	for {
		if err := c.consumeStream(ctx); err != nil && ctx.Err() == nil {
			c.log.Warnf("event stream: %v, reconnecting in %v", err, reconnectDelay)
		}
		c.ready.Store(false)
		select {
		case <-ctx.Done():
			close(c.readEvents)
			close(c.writeEvents)
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) consumeStream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.prefix+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// streaming connection, no per-request timeout
	streamClient := http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("from server: %s", resp.Status)
	}
	c.ready.Store(true)

	dec := newEventScanner(resp.Body)
	for {
		name, data, err := dec.next()
		if err != nil {
			return err
		}
		c.dispatchEvent(name, data)
	}
}

func (c *Client) dispatchEvent(name string, data []byte) {
	switch name {
	case "account.updated":
		var p struct {
			Address string `json:"address"`
			Balance string `json:"balance"`
		}
		if json.Unmarshal(data, &p) == nil {
			c.readEvents <- chain.AccountUpdated{Address: p.Address, Balance: p.Balance}
		}
	case "key.updated":
		var key paywall.Key
		if json.Unmarshal(data, &key) == nil {
			c.readEvents <- chain.KeyUpdated{Key: &key}
		}
	case "lock.updated":
		var p struct {
			Address string        `json:"address"`
			Update  *paywall.Lock `json:"update"`
		}
		if json.Unmarshal(data, &p) == nil && p.Update != nil {
			c.readEvents <- chain.LockUpdated{Address: p.Address, Update: p.Update}
		}
	case "transaction.updated":
		var p struct {
			Hash   string               `json:"hash"`
			Update *paywall.Transaction `json:"update"`
		}
		if json.Unmarshal(data, &p) == nil && p.Update != nil {
			c.readEvents <- chain.TransactionUpdated{Hash: p.Hash, Update: p.Update}
		}
	case "account.changed":
		var p struct {
			Address string `json:"address"`
		}
		if json.Unmarshal(data, &p) == nil {
			c.writeEvents <- chain.AccountChanged{Address: p.Address}
		}
	case "network.changed":
		if id, err := strconv.Atoi(string(data)); err == nil {
			c.writeEvents <- chain.NetworkChanged{NetworkID: id}
		}
	case "transaction.pending":
		c.writeEvents <- chain.TransactionPending{Type: paywall.TxType(string(data))}
	case "transaction.new":
		var p chain.TransactionNew
		if json.Unmarshal(data, &p) == nil {
			c.writeEvents <- p
		}
	case "error":
		c.writeEvents <- chain.WalletError{Err: fmt.Errorf("wallet: %s", string(data))}
	default:
		c.log.Debugf("unknown event '%s' ignored", name)
	}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.prefix+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("from server: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("error while parsing received data: %w", err)
	}
	return nil
}
