// Package history is the client of the remote transaction-history endpoint.
// Reads backfill the synchronizer after a reset; writes are a best-effort
// cache of freshly submitted transactions, never correctness-critical.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultClientTimeout = 7 * time.Second

type (
	Client struct {
		c      http.Client
		prefix string
	}

	// StoredTransaction is the endpoint's wire representation of one
	// transaction
	StoredTransaction struct {
		TransactionHash string `json:"transactionHash"`
		Chain           int    `json:"chain"`
		Recipient       string `json:"recipient"`
		Data            string `json:"data,omitempty"`
		Sender          string `json:"sender"`
		For             string `json:"for,omitempty"`
	}

	transactionsResponse struct {
		Transactions []StoredTransaction `json:"transactions"`
	}
)

func New(serverURL string, timeout ...time.Duration) *Client {
	to := defaultClientTimeout
	if len(timeout) > 0 {
		to = timeout[0]
	}
	return &Client{
		c:      http.Client{Timeout: to},
		prefix: serverURL,
	}
}

// GetTransactionsFor fetches the stored transactions sent by account,
// filtered to the given recipient locks
func (c *Client) GetTransactionsFor(ctx context.Context, account string, recipients []string) ([]StoredTransaction, error) {
	q := url.Values{}
	q.Set("for", account)
	for _, r := range recipients {
		q.Add("recipient[]", r)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.prefix+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionsFor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GetTransactionsFor: from server: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var res transactionsResponse
	if err = json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("GetTransactionsFor: error while parsing received data: %w", err)
	}
	return res.Transactions, nil
}

// StoreTransaction persists a freshly submitted transaction. The caller
// treats failures as log-only.
func (c *Client) StoreTransaction(ctx context.Context, tx StoredTransaction) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.prefix+"/transaction", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("StoreTransaction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("StoreTransaction: from server: %s", resp.Status)
	}
	return nil
}
