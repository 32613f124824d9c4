package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodeforge/nodeforge/pkg/kv"
	"github.com/nodeforge/nodeforge/pkg/workspace"
)

type validationResult struct {
	Key      kv.Key             `json:"key"`
	Validity workspace.Validity `json:"validity"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check cached files against their recorded fingerprints",
		Long: `Check every cached file against the fingerprint recorded when it was
filled. A file that changed on disk is reported as stale; a file that
disappeared is reported as missing. Stale and missing files are refilled
the next time a procedure needs them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			var results []validationResult
			invalid := 0
			for _, key := range e.ws.Keys() {
				if _, ok := e.ws.GetFile(key); !ok {
					continue
				}
				validity, err := e.ws.ValidateFile(key)
				if err != nil {
					return err
				}
				if validity != workspace.Valid {
					invalid++
				}
				results = append(results, validationResult{Key: key, Validity: validity})
			}

			if jsonOutput {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", r.Validity, r.Key)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d cached file(s) are stale or missing", invalid)
			}
			return nil
		},
	}
}
