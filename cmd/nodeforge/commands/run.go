package commands

import (
	"github.com/spf13/cobra"

	"github.com/nodeforge/nodeforge/pkg/config"
	"github.com/nodeforge/nodeforge/pkg/procedure"
	"github.com/nodeforge/nodeforge/pkg/provision"
)

func newRunCommand() *cobra.Command {
	var node string

	cmd := &cobra.Command{
		Use:   "run <procedure>",
		Short: "Run a provisioning procedure",
		Long: `Run a provisioning procedure to completion, resuming from its last
checkpoint if a previous run was interrupted.

Available procedures:
  init            record the cluster's network plan (one-time)
  create-user     generate the admin user's SSH credentials
  download-image  fetch and decompress the OS image
  deploy-node     provision one node over SSH (requires --node)`,
		Example: `  # Initialize the workspace from nodeforge.yaml
  nodeforge run init

  # Download the OS image; a failed download resumes on re-run
  nodeforge run download-image

  # Deploy one node
  nodeforge run deploy-node --node node1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			proc, err := provision.New(args[0], provision.Params{Config: cfg, Node: node})
			if err != nil {
				return err
			}

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			runner, err := procedure.NewRunner(e.ws, procedure.RunnerOptions{
				Logger:  e.log,
				Metrics: e.metrics,
				Tracer:  e.tracer,
				History: e.ledger,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx, proc)
		},
	}

	cmd.Flags().StringVar(&node, "node", "", "target node name (deploy-node)")

	return cmd
}
