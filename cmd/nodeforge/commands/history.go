package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		proc  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent procedure runs and checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			entries, err := e.ledger.List(ctx, proc, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tPROCEDURE\tEVENT")
			for _, entry := range entries {
				event := fmt.Sprintf("%s -> %s", entry.FromState, entry.ToState)
				if entry.Kind == "outcome" {
					event = entry.Outcome
				}
				fmt.Fprintf(w, "%s\t%.8s\t%s\t%s\n",
					entry.Timestamp.Format("2006-01-02 15:04:05"),
					entry.RunID,
					entry.Procedure,
					event,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&proc, "procedure", "", "only show events for this procedure")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to show")

	return cmd
}
