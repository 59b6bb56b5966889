package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/internal/storage/sqlite"
	"github.com/dyike/ThesisGo/pkg/app"
)

// runInteractive is the default mode: a menu loop until Exit or Ctrl-C.
func runInteractive(ctx context.Context, s *session) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(s.out, "ThesisGo v%s - multi-agent investment research\n\n", version)

	for {
		action, err := PromptForAction()
		if errors.Is(err, terminal.InterruptErr) {
			return nil
		}
		if err != nil {
			return err
		}

		switch action {
		case actionAnalyze:
			company, err := PromptForCompany()
			if errors.Is(err, terminal.InterruptErr) {
				continue
			}
			if err != nil {
				return err
			}
			if err := runAnalysis(ctx, s, company, analyzeFlags{}); err != nil {
				display.DisplayError(s.out, err, "analysis")
			}
		case actionScan:
			if err := runScan(ctx, s, app.ScanOptions{}, false, false, false); err != nil {
				display.DisplayError(s.out, err, "scan")
			}
		case actionHistory:
			err := withStore(ctx, s, func(ctx context.Context, store *sqlite.Store) error {
				runs, err := store.ListRuns(ctx, sqlite.RunFilter{Limit: 10})
				if err != nil {
					return err
				}
				printRuns(s.out, runs)
				return nil
			})
			if err != nil {
				display.DisplayError(s.out, err, "history")
			}
		case actionProviders:
			e, err := s.engine(ctx)
			if err != nil {
				return err
			}
			renderRegistry(s, e)
		case actionExit:
			return nil
		}
		fmt.Fprintln(s.out)
	}
}
