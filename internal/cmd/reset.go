package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lowc1012/window-log-limiter/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset <client-key>",
	Short: "Delete the stored request log of a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeFn, err := openStore(cmd.Context(), appConfig.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeFn()

		return reset(cmd.Context(), cmd.OutOrStdout(), s, args[0])
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func reset(ctx context.Context, w io.Writer, s store.Store, key string) error {
	deleter, ok := s.(store.Deleter)
	if !ok {
		return fmt.Errorf("store %T does not support deleting keys", s)
	}
	if err := deleter.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	_, err := fmt.Fprintf(w, "request log for %q removed\n", key)
	return err
}
