// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scenarist/internal/observability"
	"github.com/xkilldash9x/scenarist/internal/store"
)

// historyStore is the read side of the store used by the history command.
type historyStore interface {
	RecentRuns(ctx context.Context, name string, limit int) ([]store.RunSummary, error)
}

// openHistoryStore connects to the configured database. Tests replace it.
var openHistoryStore = func(ctx context.Context, dsn string) (historyStore, func(), error) {
	return store.Open(ctx, dsn, observability.GetLogger())
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history <scenario name>",
		Short: "Show recent persisted runs of a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return fmt.Errorf("no database configured: set store.dsn, SCENARIST_STORE_DSN or --store-dsn")
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}

			s, closeFn, err := openHistoryStore(cmd.Context(), cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := s.RecentRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for %q\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOUTCOME\tDURATION\tSTEPS\tFAILED\tRUN ID")
			for _, r := range runs {
				outcome := string(r.Outcome)
				if r.AbortedIn != "" {
					outcome += " (" + r.AbortedIn + ")"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.StartedAt.UTC().Format(time.RFC3339), outcome, r.Duration, r.StepsExecuted, r.StepFailures, r.RunID)
			}
			return w.Flush()
		},
	}
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show.")
	historyCmd.Flags().String("store-dsn", "", "PostgreSQL DSN. (Overrides config/env)")
	overrides(historyCmd, "store-dsn", "store.dsn")
	return historyCmd
}
