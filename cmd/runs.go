package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	"github.com/wardentools/warden/pkg/daemon"
	"github.com/wardentools/warden/pkg/runs"
	"github.com/wardentools/warden/tui/theme"
)

// NewRunsCmd lists all known runs.
func NewRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List all runs",
		Long:  "List every run under the runs root with its derived status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			all, err := client.GetRuns(context.Background())
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(all)
			}

			if len(all) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			t := theme.DefaultTheme
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tEVENTS\tSESSION\tUPDATED")
			for _, r := range all {
				statusStyle := lipgloss.NewStyle().Foreground(t.StatusColor(string(r.Status)))
				sess := "-"
				if r.Session != nil {
					sess = fmt.Sprintf("pid %d", r.Session.PID)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					r.ID,
					statusStyle.Render(string(r.Status)),
					r.EventCount,
					sess,
					humanizeSince(r.UpdatedAt),
				)
			}
			return w.Flush()
		},
	}
}

// NewShowCmd shows one run in detail.
func NewShowCmd() *cobra.Command {
	var events int
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client := daemon.New(cfg)
			defer client.Close()

			run, err := client.GetRun(context.Background(), args[0])
			if err != nil {
				return cli.NewErrorHandler(cli.GetOptions(cmd).Verbose).Handle(err)
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(run)
			}

			printRun(run, events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&events, "events", "n", 10, "How many recent events to print")
	return cmd
}

func printRun(r *runs.Run, eventCount int) {
	t := theme.DefaultTheme
	statusStyle := lipgloss.NewStyle().Bold(true).Foreground(t.StatusColor(string(r.Status)))

	fmt.Printf("%s  %s\n", t.Title.Render(r.ID), statusStyle.Render(string(r.Status)))
	fmt.Printf("  Directory: %s\n", r.Dir)
	if r.Session != nil {
		fmt.Printf("  Session:   pid %d, started %s\n", r.Session.PID, r.Session.StartedAt.Format(time.RFC3339))
	}
	if r.Snapshot != nil {
		fmt.Printf("  Lifecycle: %s\n", r.Snapshot.Lifecycle)
		if !r.Snapshot.UpdatedAt.IsZero() {
			fmt.Printf("  State at:  %s\n", r.Snapshot.UpdatedAt.Format(time.RFC3339))
		}
	}
	fmt.Printf("  Events:    %d total", r.EventCount)
	if r.Malformed > 0 {
		fmt.Printf(", %d malformed lines skipped", r.Malformed)
	}
	fmt.Println()
	if r.LastError != "" {
		fmt.Printf("  Last error: %s\n", r.LastError)
	}

	if len(r.LatestEvents) > 0 && eventCount > 0 {
		fmt.Println("\n" + t.Section.Render("RECENT EVENTS"))
		tail := r.LatestEvents
		if len(tail) > eventCount {
			tail = tail[len(tail)-eventCount:]
		}
		for _, ev := range tail {
			ts := ""
			if !ev.Timestamp.IsZero() {
				ts = ev.Timestamp.Format("15:04:05") + " "
			}
			kind := ev.Kind
			if kind == "" {
				kind = "(untagged)"
			}
			fmt.Printf("  %s%s %s\n", t.Muted.Render(ts), kind, truncatePayload(ev.Payload, 80))
		}
	}
}

func truncatePayload(payload []byte, max int) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func humanizeSince(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	d := time.Since(at)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return at.Format("2006-01-02")
	}
}
