package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockhaven/paywalld/daemon"
)

const stopTimeout = 10 * time.Second

func initStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "run the daemon",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			killChan := make(chan os.Signal, 1)
			signal.Notify(killChan, syscall.SIGINT, syscall.SIGTERM)

			d := daemon.New()
			go func() {
				<-killChan
				d.Stop()
			}()

			d.Start()
			d.WaitAllWorkProcessesToStop(stopTimeout)
		},
	}
}
