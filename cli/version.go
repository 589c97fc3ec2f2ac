package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockhaven/paywalld/global"
)

func initVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the daemon version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(global.BannerString())
		},
	}
}
