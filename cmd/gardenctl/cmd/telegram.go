package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bissquit/task-garden/internal/notifications"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Telegram integration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var status notifications.StatusResponse
		if err := callAPI(cmd.Context(), http.MethodGet, "/api/v1/telegram", nil, &status); err != nil {
			return err
		}

		return printOutput(cmd, status, func(w io.Writer) {
			fmt.Fprintf(w, "%s configured\n", mark(status.Configured))
			if status.ConfigError != "" {
				fmt.Fprintf(w, "  reason: %s\n", status.ConfigError)
			}
			if status.Configured {
				printConnection(w, status.ConnectionTest)
			}
			fmt.Fprintf(w, "%s reminders running\n", mark(status.RemindersRunning))
		})
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the bot credential without sending a message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var result notifications.ConnectionResult
		if err := callAPI(cmd.Context(), http.MethodPost, "/api/v1/telegram/test-connection", nil, &result); err != nil {
			return err
		}

		if err := printOutput(cmd, result, func(w io.Writer) { printConnection(w, result) }); err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("connection test failed")
		}
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test [message]",
	Short: "Send a test message to the configured chat",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := notifications.SendTestRequest{}
		if len(args) == 1 {
			req.Message = args[0]
		}

		var resp notifications.SendTestResponse
		if err := callAPI(cmd.Context(), http.MethodPost, "/api/v1/telegram/test", req, &resp); err != nil {
			return err
		}

		return printOutput(cmd, resp, func(w io.Writer) {
			printConnection(w, resp.Connection)
			if resp.Message != nil {
				fmt.Fprintf(w, "✓ test message sent (message_id %d)\n", resp.Message.MessageID)
			}
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a plain text message to the configured chat",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := notifications.SendMessageRequest{Text: strings.Join(args, " ")}

		var handle notifications.MessageHandle
		if err := callAPI(cmd.Context(), http.MethodPost, "/api/v1/telegram/messages", req, &handle); err != nil {
			return err
		}

		return printOutput(cmd, handle, func(w io.Writer) {
			fmt.Fprintf(w, "✓ message sent (message_id %d)\n", handle.MessageID)
		})
	},
}

func printConnection(w io.Writer, result notifications.ConnectionResult) {
	if result.OK {
		fmt.Fprintf(w, "✓ connected as @%s\n", result.Username)
		return
	}
	fmt.Fprintf(w, "✗ connection failed: %s\n", result.Error)
	if hint := result.Category.Hint(); hint != "" {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd, testConnectionCmd, testCmd, sendCmd)
}
