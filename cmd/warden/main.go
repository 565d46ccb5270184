package main

import (
	"os"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/cmd"
	"github.com/wardentools/warden/version"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"warden",
		"Supervisor for long-running, filesystem-mediated agent runs",
	)
	rootCmd.Version = version.Version
	cli.SetVersionTemplate(rootCmd, cli.VersionInfo{
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.BuildDate,
	})

	// Add subcommands
	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewRunsCmd())
	rootCmd.AddCommand(cmd.NewShowCmd())
	rootCmd.AddCommand(cmd.NewDispatchCmd())
	rootCmd.AddCommand(cmd.NewResumeCmd())
	rootCmd.AddCommand(cmd.NewInterruptCmd())
	rootCmd.AddCommand(cmd.NewConfirmCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewDashCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	cli.ApplyStyledHelpRecursive(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
