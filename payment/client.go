package payment

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

const defaultClientTimeout = 10 * time.Second

// Client implements Gateway over the processor's HTTP API. Every call is
// scoped to a connected sub-account via a request header, the way processor
// platform APIs address merchant accounts.
type Client struct {
	c      http.Client
	prefix string
	apiKey string
}

func NewClient(serverURL, apiKey string, timeout ...time.Duration) *Client {
	to := defaultClientTimeout
	if len(timeout) > 0 {
		to = timeout[0]
	}
	return &Client{
		c:      http.Client{Timeout: to},
		prefix: serverURL,
		apiKey: apiKey,
	}
}

func (c *Client) ConnectForLock(ctx context.Context, lockAddress string, network int) (ConnectInfo, error) {
	q := url.Values{}
	q.Set("lock", lockAddress)
	q.Set("chain", strconv.Itoa(network))

	var ret ConnectInfo
	err := c.call(ctx, http.MethodGet, "/stripe/connect?"+q.Encode(), "", nil, &ret)
	if err != nil {
		return ConnectInfo{}, fmt.Errorf("ConnectForLock: %w", err)
	}
	return ret, nil
}

func (c *Client) CreateIntent(ctx context.Context, connectedAccount string, par IntentParams) (*Intent, error) {
	var ret Intent
	err := c.call(ctx, http.MethodPost, "/payment_intents", connectedAccount, par, &ret)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	return &ret, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, connectedAccount, intentID string) (*Intent, error) {
	var ret Intent
	err := c.call(ctx, http.MethodGet, "/payment_intents/"+intentID, connectedAccount, nil, &ret)
	if err != nil {
		return nil, fmt.Errorf("RetrieveIntent: %w", err)
	}
	return &ret, nil
}

func (c *Client) SetIntentTransactionHash(ctx context.Context, connectedAccount, intentID, txHash string) error {
	body := map[string]string{"transactionHash": txHash}
	err := c.call(ctx, http.MethodPost, "/payment_intents/"+intentID, connectedAccount, body, nil)
	if err != nil {
		return fmt.Errorf("SetIntentTransactionHash: %w", err)
	}
	return nil
}

func (c *Client) CaptureIntent(ctx context.Context, connectedAccount, intentID string) error {
	err := c.call(ctx, http.MethodPost, "/payment_intents/"+intentID+"/capture", connectedAccount, nil, nil)
	if err != nil {
		return fmt.Errorf("CaptureIntent: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path, connectedAccount string, body, result any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.prefix+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if connectedAccount != "" {
		req.Header.Set("Stripe-Account", connectedAccount)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("from server: %s: %s", resp.Status, string(data))
	}
	if result == nil {
		return nil
	}
	if err = json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("error while parsing received data: %w", err)
	}
	return nil
}
