package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodeforge/nodeforge/pkg/kv"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the artifact cache",
	}

	cmd.AddCommand(newCacheListCommand())
	cmd.AddCommand(newCacheGetCommand())
	cmd.AddCommand(newCacheRemoveCommand())

	return cmd
}

func newCacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all cache keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			keys := e.ws.Keys()
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(keys)
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newCacheGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			key, err := kv.ParseKey(args[0])
			if err != nil {
				return err
			}

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			if ref, ok := e.ws.GetFile(key); ok {
				if jsonOutput {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(ref)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "file: %s\n", e.ws.ResolvePath(key))
				return nil
			}

			value, ok, err := e.ws.GetValue(key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache entry %q not found", key)
			}
			data, err := kv.MarshalValue(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newCacheRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>",
		Aliases: []string{"rm"},
		Short:   "Remove a cache entry",
		Long: `Remove a cache entry. The entry's cached file, if any, is left on
disk; a subsequent fill of the same key prompts before reusing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			key, err := kv.ParseKey(args[0])
			if err != nil {
				return err
			}

			e, err := setup(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			if err := e.ws.RemoveValue(key); err != nil {
				return err
			}
			e.log.Info().Str("key", key.String()).Msg("cache entry removed")
			return nil
		},
	}
}
