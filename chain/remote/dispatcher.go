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
)

// Dispatcher talks to the grant-dispatching service: a funded signer that
// broadcasts grant transactions and pays their gas on behalf of assisted
// purchases.
type Dispatcher struct {
	c      http.Client
	prefix string
}

func NewDispatcher(serverURL string, timeout ...time.Duration) *Dispatcher {
	to := defaultClientTimeout
	if len(timeout) > 0 {
		to = timeout[0]
	}
	return &Dispatcher{
		c:      http.Client{Timeout: to},
		prefix: serverURL,
	}
}

func (d *Dispatcher) HasGasFunds(ctx context.Context, network int, keyCount int) (bool, error) {
	q := url.Values{}
	q.Set("chain", strconv.Itoa(network))
	q.Set("count", strconv.Itoa(keyCount))
	var ret struct {
		HasFunds bool `json:"hasFunds"`
	}
	if err := d.get(ctx, "/gasFunds?"+q.Encode(), &ret); err != nil {
		return false, fmt.Errorf("HasGasFunds: %w", err)
	}
	return ret.HasFunds, nil
}

// GrantKeys submits the grant transaction and invokes onSubmitted with the
// returned hash. The service answers as soon as the transaction is
// broadcast; mining is not awaited.
func (d *Dispatcher) GrantKeys(ctx context.Context, lockAddress string, recipients []string, network int, onSubmitted func(txHash string) error) error {
	body, err := json.Marshal(map[string]any{
		"lock":       lockAddress,
		"recipients": recipients,
		"chain":      network,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.prefix+"/grant", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.c.Do(req)
	if err != nil {
		return fmt.Errorf("GrantKeys: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GrantKeys: from server: %s: %s", resp.Status, string(data))
	}
	var ret struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err = json.Unmarshal(data, &ret); err != nil {
		return fmt.Errorf("GrantKeys: error while parsing received data: %w", err)
	}
	if ret.TransactionHash == "" {
		return fmt.Errorf("GrantKeys: no transaction hash in response")
	}
	return onSubmitted(ret.TransactionHash)
}

func (d *Dispatcher) KeyIDFor(ctx context.Context, lockAddress, owner string, network int) (string, error) {
	q := url.Values{}
	q.Set("lock", lockAddress)
	q.Set("owner", owner)
	q.Set("chain", strconv.Itoa(network))
	var ret struct {
		KeyID string `json:"keyId"`
	}
	if err := d.get(ctx, "/keyId?"+q.Encode(), &ret); err != nil {
		return "", fmt.Errorf("KeyIDFor: %w", err)
	}
	return ret.KeyID, nil
}

func (d *Dispatcher) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.prefix+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.c.Do(req)
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
