// Package cli holds the paywalld command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "paywalld",
	Short: "membership-state reconciliation daemon",
	Long: `paywalld tracks the membership state of a configured set of locks:
keys, transactions and balances for the active account, reconciled from the
chain gateway and served to host pages over the bridge boundary.
`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		initConfig()
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	pflag.StringVarP(&configFile, "config", "c", "", "config file name (default 'paywalld.yaml' in the current directory)")
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	err := viper.BindPFlags(pflag.CommandLine)
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		initStartCmd(),
		initSnapshotCmd(),
		initVersionCmd(),
	)
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("paywalld")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		_, _ = fmt.Fprintf(os.Stderr, "using config profile: %s\n", viper.ConfigFileUsed())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
