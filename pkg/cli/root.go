// Package cli implements the mongo-bridge command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mongo-bridge/internal/datastore"
	"mongo-bridge/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// newDatastore builds the datastore used by commands that talk to MongoDB.
// Tests replace it.
var newDatastore = func(logger *slog.Logger, timeout time.Duration) domain.Datastore {
	return datastore.NewMongo(logger, timeout)
}

// Execute runs the CLI.
func Execute() int {
	return execute(newRootCmd(), os.Stdout, os.Stderr)
}

func execute(rootCmd *cobra.Command, stdout, stderr io.Writer) int {
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var output string

	rootCmd := &cobra.Command{
		Use:           "mongo-bridge",
		Short:         "Grafana JSON datasource bridge for MongoDB",
		Long:          "Serves the Grafana JSON datasource protocol and answers it with MongoDB aggregation pipelines.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("MONGO_BRIDGE_OUTPUT"); v != "" {
					output = v
				}
			}
			return validateOutputFormat(output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
