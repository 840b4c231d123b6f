package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bissquit/task-garden/internal/notifications"
	"github.com/spf13/cobra"
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Control the overdue reminder poller",
}

func remindersStateCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var state notifications.RemindersStateResponse
			if err := callAPI(cmd.Context(), http.MethodPost, "/api/v1/telegram/reminders/"+action, nil, &state); err != nil {
				return err
			}
			return printOutput(cmd, state, func(w io.Writer) {
				fmt.Fprintf(w, "%s reminders running\n", mark(state.Running))
			})
		},
	}
}

var remindersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one reminder cycle now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var result notifications.CycleResult
		if err := callAPI(cmd.Context(), http.MethodPost, "/api/v1/telegram/reminders/check", nil, &result); err != nil {
			return err
		}

		return printOutput(cmd, result, func(w io.Writer) {
			if result.Skipped {
				fmt.Fprintln(w, "cycle skipped: telegram is not configured")
				return
			}
			if result.Error != "" {
				fmt.Fprintf(w, "✗ cycle failed: %s\n", result.Error)
				return
			}
			fmt.Fprintf(w, "overdue: %d  sent: %d  already sent: %d  failed: %d\n",
				result.Overdue, result.Sent, result.AlreadySent, result.Failed)
		})
	},
}

func init() {
	remindersCmd.AddCommand(
		remindersStateCmd("start", "Start the reminder poller"),
		remindersStateCmd("stop", "Stop the reminder poller"),
		remindersCheckCmd,
	)
	rootCmd.AddCommand(remindersCmd)
}
