package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/placeholder"
	"mongo-bridge/internal/querytext"
)

// timeValue is a pflag.Value holding an RFC 3339 timestamp.
type timeValue struct{ t *time.Time }

var _ pflag.Value = timeValue{}

func (v timeValue) String() string {
	if v.t == nil || v.t.IsZero() {
		return ""
	}
	return v.t.Format(time.RFC3339Nano)
}

func (v timeValue) Set(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("expected an RFC 3339 timestamp: %w", err)
	}
	*v.t = t
	return nil
}

func (timeValue) Type() string { return "time" }

type parseOutput struct {
	Collection string               `json:"collection"`
	Operation  string               `json:"operation"`
	Pipeline   []*document.Document `json:"pipeline"`
	Options    *document.Document   `json:"options,omitempty"`
	Replaced   int                  `json:"replaced"`
}

func newParseCmd() *cobra.Command {
	var (
		from, to   time.Time
		intervalMs int64
	)

	cmd := &cobra.Command{
		Use:   "parse <query>",
		Short: "Parse query text and print the resulting pipeline",
		Long: "Parses query text the way /query does. With --from and --to the\n" +
			"time placeholders are substituted before printing.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := querytext.Parse(args[0])
			if err != nil {
				return err
			}

			out := parseOutput{
				Collection: q.Collection,
				Operation:  q.Operation,
				Pipeline:   q.Pipeline,
				Options:    q.Options,
			}
			if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
				if from.IsZero() || to.IsZero() {
					return domain.ErrValidation("--from and --to must be given together")
				}
				r := domain.TimeRange{From: from, To: to}
				out.Replaced = placeholder.ForRange(r, intervalMs).Apply(q.Pipeline)
			}

			w := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(w, out)
			}
			pipeline, err := document.Array(pipelineValues(q.Pipeline)...).MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "collection: %s\n", out.Collection) //nolint:errcheck
			fmt.Fprintf(w, "operation:  %s\n", out.Operation)  //nolint:errcheck
			fmt.Fprintf(w, "pipeline:   %s\n", pipeline)       //nolint:errcheck
			if out.Options != nil {
				opts, err := out.Options.MarshalJSON()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "options:    %s\n", opts) //nolint:errcheck
			}
			_, err = fmt.Fprintf(w, "replaced:   %d\n", out.Replaced)
			return err
		},
	}

	cmd.Flags().Var(timeValue{&from}, "from", "range start (RFC 3339) for placeholder substitution")
	cmd.Flags().Var(timeValue{&to}, "to", "range end (RFC 3339) for placeholder substitution")
	cmd.Flags().Int64Var(&intervalMs, "interval-ms", 0, "dashboard interval in milliseconds for $dateBucketCount")

	return cmd
}

func pipelineValues(stages []*document.Document) []document.Value {
	vals := make([]document.Value, len(stages))
	for i, s := range stages {
		vals[i] = document.Doc(s)
	}
	return vals
}
