package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/internal/utils"
	"github.com/dyike/ThesisGo/pkg/app"
)

type scanOutput struct {
	Scan      *models.ScanResult  `json:"scan"`
	Providers []llm.ProviderStats `json:"providers"`
}

func newScanCmd(s *session) *cobra.Command {
	var (
		opts   app.ScanOptions
		asJSON bool
		noSave bool
		toCSV  bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Rank the best performing stocks and sectors over a lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.DiscoveryMode {
			case "", config.DiscoveryStatic, config.DiscoveryLLM:
			default:
				return fmt.Errorf("unknown discovery mode %q (use %s or %s)", opts.DiscoveryMode, config.DiscoveryStatic, config.DiscoveryLLM)
			}
			return runScan(cmd.Context(), s, opts, asJSON, noSave, toCSV)
		},
	}

	cmd.Flags().IntVar(&opts.LookbackDays, "days", 0, "Lookback window in days (config default when 0)")
	cmd.Flags().IntVar(&opts.TopN, "top", 0, "Number of stocks to show (config default when 0)")
	cmd.Flags().StringVar(&opts.DiscoveryMode, "discovery", "", "Universe discovery: static or llm")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the scan result as JSON")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not record the scan in the history database")
	cmd.Flags().BoolVar(&toCSV, "csv", false, "Also export the ranking as CSV under data_dir/scans")
	return cmd
}

func runScan(ctx context.Context, s *session, opts app.ScanOptions, asJSON, noSave, toCSV bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := s.engine(ctx)
	if err != nil {
		return err
	}

	if !asJSON {
		fmt.Fprintln(s.err, "Scanning market data, this can take a minute...")
	}
	result, stats := e.Scan(ctx, opts)

	if !noSave {
		if store, err := e.OpenStore(); err != nil {
			s.log.Warnf("[CLI] history store unavailable: %v", err)
		} else {
			if err := store.SaveScan(ctx, result); err != nil {
				s.log.Warnf("[CLI] failed to record scan: %v", err)
			}
			store.Close()
		}
	}

	if toCSV {
		path, err := utils.ExportScanCSV(e.Settings().DataDir, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.err, "CSV written to %s\n", path)
	}

	if asJSON {
		return s.printJSON(scanOutput{Scan: result, Providers: stats})
	}
	display.RenderScan(s.out, result)
	return nil
}
