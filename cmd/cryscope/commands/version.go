package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/harunnryd/cryscope/pkg/cryscope"
	"github.com/harunnryd/cryscope/pkg/runner"
)

func newVersionCommand(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			transportNames, captureNames := cryscope.DefaultProviders().Names()
			if format == "json" {
				return json.NewEncoder(out).Encode(map[string]any{
					"version":    runner.Version,
					"go":         runtime.Version(),
					"transports": transportNames,
					"captures":   captureNames,
				})
			}
			fmt.Fprintf(out, "cryscope %s\n", runner.Version)
			if root.verbose {
				fmt.Fprintf(out, "  go:         %s\n", runtime.Version())
				fmt.Fprintf(out, "  transports: %v\n", transportNames)
				fmt.Fprintf(out, "  captures:   %v\n", captureNames)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	return cmd
}
