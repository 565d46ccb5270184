package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/pkg/daemon"
)

// NewResumeCmd re-invokes the agent against an existing run.
func NewResumeCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an existing run",
		Long:  "Re-invoke the agent against an existing run directory with an updated prompt. Journal and state files are continued, not truncated.",
		Args:  cobra.ExactArgs(1),
		Example: `  # Continue a paused run with fresh instructions
  warden resume run-20240615-094530 --prompt "Also include Q2"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			if err := client.Resume(context.Background(), args[0], prompt); err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			fmt.Printf("Resumed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Updated prompt passed to the agent")
	return cmd
}
