package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
	"github.com/dyike/ThesisGo/internal/utils"
)

// withStore opens the history database for the duration of fn. It reads the
// path from the config file and never builds an engine.
func withStore(ctx context.Context, s *session, fn func(ctx context.Context, store *sqlite.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := s.manager()
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	cfg.ApplyEnv()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(ctx, store)
}

func newHistoryCmd(s *session) *cobra.Command {
	var filter sqlite.RunFilter
	listRuns := func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
			runs, err := store.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			printRuns(s.out, runs)
			return nil
		})
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded analyses and scans",
		RunE:  listRuns,
	}
	historyCmd.PersistentFlags().StringVar(&filter.Company, "company", "", "Only runs whose company contains this text")
	historyCmd.PersistentFlags().IntVar(&filter.Limit, "limit", 20, "Maximum rows to list")
	historyCmd.PersistentFlags().Int64Var(&filter.Cursor, "before", 0, "Only rows older than this row number")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded analyses, newest first",
		RunE:  listRuns,
	})

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a recorded analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				report, err := store.GetRun(ctx, args[0])
				if err != nil {
					return notFound(err, "run", args[0])
				}
				if showJSON {
					return s.printJSON(report)
				}
				display.RenderReport(s.out, report)
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print as JSON")
	historyCmd.AddCommand(showCmd)

	historyCmd.AddCommand(&cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete a recorded analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.DeleteRun(ctx, args[0]); err != nil {
					return notFound(err, "run", args[0])
				}
				display.DisplaySuccess(s.out, "Deleted "+args[0])
				return nil
			})
		},
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := PromptForConfirmation("Delete all recorded analyses?", false)
				if err != nil || !ok {
					return err
				}
			}
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				n, err := store.ClearRuns(ctx)
				if err != nil {
					return err
				}
				display.DisplaySuccess(s.out, fmt.Sprintf("Deleted %d run(s)", n))
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	historyCmd.AddCommand(clearCmd)

	historyCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				st, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Total analyses:      %d\n", st.Total)
				fmt.Fprintf(s.out, "Successful:          %d\n", st.Successful)
				fmt.Fprintf(s.out, "Unique companies:    %d\n", st.UniqueCompanies)
				fmt.Fprintf(s.out, "Average confidence:  %.1f%%\n", st.AvgConfidence)
				fmt.Fprintf(s.out, "Average duration:    %s\n", st.AvgExecutionTime.Round(time.Second))
				return nil
			})
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "scans",
		Short: "List recorded market scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				scans, err := store.ListScans(ctx, filter.Limit)
				if err != nil {
					return err
				}
				printScans(s.out, scans)
				return nil
			})
		},
	})

	var scanCSV bool
	scanCmd := &cobra.Command{
		Use:   "scan SCAN_ID",
		Short: "Show a recorded market scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), s, func(ctx context.Context, store *sqlite.Store) error {
				result, err := store.GetScan(ctx, args[0])
				if err != nil {
					return notFound(err, "scan", args[0])
				}
				if scanCSV {
					return utils.WriteScanCSV(s.out, result)
				}
				display.RenderScan(s.out, result)
				return nil
			})
		},
	}
	scanCmd.Flags().BoolVar(&scanCSV, "csv", false, "Print the ranking as CSV")
	historyCmd.AddCommand(scanCmd)

	return historyCmd
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return fmt.Errorf("no %s with id %s", kind, id)
	}
	return err
}

func printRuns(w io.Writer, runs []sqlite.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No analyses recorded yet. Run 'thesisgo analyze <company>' first.")
		return
	}
	fmt.Fprintf(w, "%-5s %-36s %-24s %-8s %6s %-8s %s\n", "ROW", "ID", "COMPANY", "STATUS", "CONF", "REC", "WHEN")
	for _, r := range runs {
		fmt.Fprintf(w, "%-5d %-36s %-24s %-8s %5.0f%% %-8s %s\n",
			r.RowID, r.ID, clip(r.Company, 24), r.Status, r.Confidence,
			display.ExtractRecommendation(r.Recommendation), r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if len(runs) > 1 {
		fmt.Fprintf(w, "\nOlder entries: --before %d\n", runs[len(runs)-1].RowID)
	}
}

func printScans(w io.Writer, scans []sqlite.ScanRecord) {
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans recorded yet.")
		return
	}
	fmt.Fprintf(w, "%-36s %-5s %-8s %-7s %-9s %s\n", "ID", "DAYS", "MODE", "STOCKS", "SENTIMENT", "WHEN")
	for _, sc := range scans {
		fmt.Fprintf(w, "%-36s %-5d %-8s %-7d %-9s %s\n",
			sc.ID, sc.LookbackDays, sc.DiscoveryMode, sc.StocksAnalyzed, sc.Sentiment,
			sc.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
