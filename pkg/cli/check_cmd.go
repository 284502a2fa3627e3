package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mongo-bridge/internal/datastore"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/service/query"
)

func newCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check <mongo-url>",
		Short: "Test connectivity to a MongoDB deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelError}))
			svc := query.NewService(newDatastore(logger, timeout), nil, nil, logger, query.Diagnostics{})

			res := svc.TestConnection(cmd.Context(), domain.TestRequest{DB: domain.Connection{URL: args[0]}})

			w := cmd.OutOrStdout()
			var err error
			if getOutputFormat(cmd) == "json" {
				err = printJSON(w, res)
			} else {
				_, err = fmt.Fprintf(w, "%s: %s\n", res.DisplayStatus, res.Message)
			}
			if err != nil {
				return err
			}
			if res.Status != domain.StatusSuccess {
				return errors.New("connection check failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", datastore.DefaultConnectTimeout, "connect and server selection timeout")

	return cmd
}
