package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "scada_sms",
		Short:         "SCADA SMS alarm notification system",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default configs/config.defaults.yaml)")

	root.AddCommand(
		newSendAlarmCmd(&configFile),
		newProcessQueueCmd(&configFile),
		newListAlarmsCmd(&configFile),
		newShowAlarmCmd(&configFile),
		newAuditCmd(&configFile),
		newInitDBCmd(&configFile),
		newSeedCalendarCmd(&configFile),
		newIsRestrictedCmd(&configFile),
		newSetConfigCmd(&configFile),
		newServeCmd(&configFile),
	)
	return root
}
