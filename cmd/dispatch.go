package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/pkg/daemon"
)

// NewDispatchCmd creates a new run and spawns the agent against it.
func NewDispatchCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Create a new run and start the agent",
		Long:  "Create a fresh run directory and spawn the configured agent executable under a pseudo-terminal. Requires the daemon.",
		Example: `  # Start a run with a prompt
  warden dispatch --prompt "Summarize the quarterly numbers"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			id, err := client.Dispatch(context.Background(), prompt)
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt passed to the agent")
	return cmd
}
