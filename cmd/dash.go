package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/pkg/daemon"
	"github.com/wardentools/warden/tui"
)

// NewDashCmd opens the live run dashboard.
func NewDashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Open the live run dashboard",
		Long:  "A full-screen table of runs with live status updates streamed from the daemon. Without the daemon the view refreshes by polling the runs root.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			return tui.Run(context.Background(), client)
		},
	}
}
