package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetTransactionsFor(t *testing.T) {
	stored := []StoredTransaction{
		{TransactionHash: "0xaaa", Chain: 1, Recipient: "0xlock1", Sender: "0xme", Data: "0xdeadbeef"},
		{TransactionHash: "0xbbb", Chain: 4, Recipient: "0xlock2", Sender: "0xme"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.EqualValues(t, "/transactions", r.URL.Path)
		require.EqualValues(t, "0xme", r.URL.Query().Get("for"))
		require.EqualValues(t, []string{"0xlock1", "0xlock2"}, r.URL.Query()["recipient[]"])
		_ = json.NewEncoder(w).Encode(transactionsResponse{Transactions: stored})
	}))
	defer srv.Close()

	c := New(srv.URL)
	txs, err := c.GetTransactionsFor(context.Background(), "0xme", []string{"0xlock1", "0xlock2"})
	require.NoError(t, err)
	require.EqualValues(t, stored, txs)
}

func TestGetTransactionsForServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetTransactionsFor(context.Background(), "0xme", nil)
	require.Error(t, err)
}

func TestStoreTransaction(t *testing.T) {
	var received StoredTransaction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.EqualValues(t, http.MethodPost, r.Method)
		require.EqualValues(t, "/transaction", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	tx := StoredTransaction{TransactionHash: "0xccc", Chain: 1, Recipient: "0xlock1", Sender: "0xme", For: "0xme"}
	require.NoError(t, New(srv.URL).StoreTransaction(context.Background(), tx))
	require.EqualValues(t, tx, received)
}
