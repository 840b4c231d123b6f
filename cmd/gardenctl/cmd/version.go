package cmd

import (
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/bissquit/task-garden/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client and server version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report := struct {
			Client    version.Info  `json:"client"`
			GoVersion string        `json:"go_version"`
			Server    *version.Info `json:"server,omitempty"`
		}{
			Client:    version.Get(),
			GoVersion: runtime.Version(),
		}

		var server version.Info
		serverErr := callAPI(cmd.Context(), http.MethodGet, "/version", nil, &server)
		if serverErr == nil {
			report.Server = &server
		}

		return printOutput(cmd, report, func(w io.Writer) {
			fmt.Fprintf(w, "gardenctl %s (commit %s, built %s, %s)\n",
				report.Client.Version, report.Client.Commit, report.Client.BuildDate, report.GoVersion)
			if report.Server != nil {
				fmt.Fprintf(w, "server    %s (commit %s, built %s)\n",
					server.Version, server.Commit, server.BuildDate)
			} else {
				fmt.Fprintf(w, "server    unavailable: %v\n", serverErr)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
