package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v2"

	"github.com/lockhaven/paywalld/paywall"
)

var prn = message.NewPrinter(language.English)

func initSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "print the current snapshot of a running daemon",
		Args:  cobra.NoArgs,
		Run:   runSnapshotCmd,
	}
}

func runSnapshotCmd(_ *cobra.Command, _ []string) {
	addr := viper.GetString("bridge.listen")
	if addr == "" {
		addr = ":8555"
	}
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}

	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/snapshot")
	cobra.CheckErr(err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	cobra.CheckErr(err)
	if resp.StatusCode != http.StatusOK {
		cobra.CheckErr(fmt.Errorf("from daemon: %s: %s", resp.Status, string(data)))
	}

	var snap paywall.Snapshot
	cobra.CheckErr(json.Unmarshal(data, &snap))
	printSnapshot(&snap)
}

func printSnapshot(snap *paywall.Snapshot) {
	out := map[string]any{
		"network": snap.Network,
		"account": snap.Account,
		"balance": formatAmount(snap.Balance),
	}

	locks := make([]map[string]any, 0, len(snap.Locks))
	for _, addr := range sortedKeys(snap.Locks) {
		lock := snap.Locks[addr]
		entry := map[string]any{
			"address":  addr,
			"name":     lock.Name,
			"keyPrice": formatAmount(lock.KeyPrice),
		}
		if lock.Key != nil {
			entry["keyStatus"] = string(lock.Key.Status)
			entry["keyExpiration"] = lock.Key.Expiration
		}
		locks = append(locks, entry)
	}
	out["locks"] = locks

	txs := make([]map[string]any, 0, len(snap.Transactions))
	for _, hash := range sortedKeys(snap.Transactions) {
		tx := snap.Transactions[hash]
		txs = append(txs, map[string]any{
			"hash":          hash,
			"status":        string(tx.Status),
			"confirmations": tx.Confirmations,
			"lock":          tx.RecipientLock(),
		})
	}
	out["transactions"] = txs

	rendered, err := yaml.Marshal(out)
	cobra.CheckErr(err)
	_, _ = os.Stdout.Write(rendered)
}

// formatAmount renders a decimal amount with thousand separators; anything
// unparseable is passed through as-is
func formatAmount(amount string) string {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return amount
	}
	return prn.Sprintf("%v", v)
}

func sortedKeys[T any](m map[string]T) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
