package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/internal/daemon/engine"
	"github.com/wardentools/warden/pkg/daemon"
)

// NewInterruptCmd sends the interrupt byte to a run's live session.
func NewInterruptCmd() *cobra.Command {
	return newControlCmd(
		"interrupt <run-id>",
		"Interrupt a run's live session",
		"Write the interrupt byte (Ctrl-C) into the session's pty input.",
		engine.ControlInterrupt,
	)
}

// NewConfirmCmd sends the confirm byte to a run's live session.
func NewConfirmCmd() *cobra.Command {
	return newControlCmd(
		"confirm <run-id>",
		"Confirm a pending question in a run's session",
		"Write the confirm byte (carriage return) into the session's pty input. Use when a run is awaiting input and the pending question should be accepted.",
		engine.ControlConfirm,
	)
}

func newControlCmd(use, short, long, control string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			if err := client.Control(context.Background(), args[0], control); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			fmt.Printf("Sent %s to %s\n", control, args[0])
			return nil
		},
	}
}
