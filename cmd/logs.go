package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/wardentools/warden/cli"
	wardenerrors "github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/pkg/runs"
	"github.com/wardentools/warden/tui/theme"
)

// NewLogsCmd pretty-prints a run's journal, optionally following it.
func NewLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print a run's journal",
		Long:  "Pretty-print the run's journal events. With --follow, keep the file open and stream new events as the agent appends them.",
		Args:  cobra.ExactArgs(1),
		Example: `  # Dump the whole journal
  warden logs run-20240615-094530

  # Follow live output
  warden logs run-20240615-094530 -f`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			id := args[0]
			if !runs.IsID(id) {
				return cli.NewErrorHandler(false).Handle(
					wardenerrors.New(wardenerrors.ErrCodeInvalidInput, fmt.Sprintf("%q is not a run identifier", id)))
			}

			path := runs.JournalPath(filepath.Join(cfg.ResolveRunsRoot(), id))

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: !follow,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer t.Cleanup()

			for line := range t.Lines {
				if line.Err != nil {
					return line.Err
				}
				printJournalLine(line.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new events as they are appended")
	return cmd
}

// printJournalLine renders one journal line: parsed events get a timestamp
// and kind prefix, anything else is echoed raw so malformed lines stay
// visible to the operator.
func printJournalLine(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	var probe struct {
		Timestamp string `json:"timestamp"`
		Kind      string `json:"kind"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		fmt.Println(trimmed)
		return
	}

	t := theme.DefaultTheme
	ts := ""
	if parsed, err := time.Parse(time.RFC3339Nano, probe.Timestamp); err == nil {
		ts = parsed.Format("15:04:05") + " "
	}
	kind := probe.Kind
	if kind == "" {
		kind = "(untagged)"
	}
	kindStyle := lipgloss.NewStyle().Foreground(t.Colors.Cyan)

	if probe.Message != "" {
		fmt.Printf("%s%s %s\n", t.Muted.Render(ts), kindStyle.Render(kind), probe.Message)
	} else {
		fmt.Printf("%s%s %s\n", t.Muted.Render(ts), kindStyle.Render(kind), trimmed)
	}
}
