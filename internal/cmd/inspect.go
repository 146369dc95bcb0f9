package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
	"github.com/lowc1012/window-log-limiter/internal/store"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <client-key>",
	Short: "Print the stored request log of a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeFn, err := openStore(cmd.Context(), appConfig.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeFn()

		windowCfg, err := appConfig.WindowConfig()
		if err != nil {
			return err
		}
		return inspect(cmd.Context(), cmd.OutOrStdout(), s, windowCfg, args[0], time.Now())
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspect(ctx context.Context, w io.Writer, s store.Store, cfg algorithm.WindowConfig, key string, now time.Time) error {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: get %q: %w", algorithm.ErrStoreUnavailable, key, err)
	}
	if !found {
		_, err := fmt.Fprintf(w, "no request log stored for %q\n", key)
		return err
	}

	requestLog, err := algorithm.DecodeRequestLog(raw)
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}

	windowStart := now.Unix() - int64(cfg.WindowSize()/time.Second)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Timestamp", "Time (UTC)", "Count", "In Window"})
	for _, e := range requestLog {
		t.AppendRow(table.Row{
			e.Timestamp,
			time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
			e.Count,
			e.Timestamp > windowStart,
		})
	}
	t.AppendFooter(table.Row{
		"", "Window total",
		fmt.Sprintf("%d / %d", requestLog.CountSince(windowStart), cfg.MaxRequests()),
		"",
	})

	_, err = fmt.Fprintln(w, t.Render())
	return err
}
