package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
	"github.com/dyike/ThesisGo/pkg/app"
)

type analyzeFlags struct {
	json      bool
	graph     bool
	graphSet  bool
	noSave    bool
	noReports bool
	revise    bool
}

type analysisOutput struct {
	Report    *models.RunReport   `json:"report"`
	Providers []llm.ProviderStats `json:"providers"`
}

func newAnalyzeCmd(s *session) *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze [COMPANY]",
		Short: "Run the five-stage research pipeline for a company",
		Long: `Run research, sentiment, valuation, thesis and critique for a company, then
derive a recommendation. Prompts for the company when none is given.`,
		Example: "thesisgo analyze Apple Inc.\nthesisgo analyze NVDA --graph --json\nthesisgo analyze NVDA --revise",
		RunE: func(cmd *cobra.Command, args []string) error {
			company := strings.TrimSpace(strings.Join(args, " "))
			if company == "" {
				var err error
				if company, err = PromptForCompany(); err != nil {
					return err
				}
			}
			flags.graphSet = cmd.Flags().Changed("graph")
			return runAnalysis(cmd.Context(), s, company, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&flags.graph, "graph", false, "Use the eino graph runner instead of the linear pipeline")
	cmd.Flags().BoolVar(&flags.noSave, "no-save", false, "Do not record the run in the history database")
	cmd.Flags().BoolVar(&flags.noReports, "no-reports", false, "Do not write per-stage markdown reports")
	cmd.Flags().BoolVar(&flags.revise, "revise", false, "Rewrite the thesis against the critique before the recommendation")
	return cmd
}

func runAnalysis(ctx context.Context, s *session, company string, flags analyzeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := s.engine(ctx)
	if err != nil {
		return err
	}

	opts := app.AnalyzeOptions{
		UseGraph:    e.Config.UseGraph,
		SaveReports: !flags.noReports,
		Revise:      flags.revise,
	}
	if flags.graphSet {
		opts.UseGraph = flags.graph
	}
	if !flags.json {
		opts.Observer = display.StageProgress(s.err)
	}

	started := time.Now()
	report, stats := e.Analyze(ctx, company, opts)
	elapsed := time.Since(started)

	if !flags.noSave {
		saveRun(ctx, s, e, report, elapsed)
	}

	if flags.json {
		if err := s.printJSON(analysisOutput{Report: report, Providers: stats}); err != nil {
			return err
		}
	} else {
		renderAnalysis(s.out, report, stats)
	}

	if report.Status != consts.State_Success {
		return errors.New(report.Error)
	}
	return nil
}

func renderAnalysis(w io.Writer, report *models.RunReport, stats []llm.ProviderStats) {
	display.RenderReport(w, report)
	if len(stats) > 0 {
		display.RenderProviders(w, stats, -1)
	}
}

func saveRun(ctx context.Context, s *session, e *app.Engine, report *models.RunReport, elapsed time.Duration) {
	if report.State == nil {
		return
	}
	store, err := e.OpenStore()
	if err != nil {
		s.log.Warnf("[CLI] history store unavailable: %v", err)
		return
	}
	defer store.Close()
	if err := store.SaveRun(ctx, report, elapsed); err != nil {
		s.log.Warnf("[CLI] failed to record run: %v", err)
	}
}

type answerOutput struct {
	RunID     string              `json:"run_id"`
	Question  string              `json:"question"`
	Answer    string              `json:"answer"`
	Providers []llm.ProviderStats `json:"providers"`
}

func newAskCmd(s *session) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "ask RUN_ID QUESTION...",
		Short:   "Ask a follow-up question about a recorded analysis run",
		Example: "thesisgo ask 3f2a9c1e-... What are the main downside risks?",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), s, args[0], strings.Join(args[1:], " "), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}

func runAsk(ctx context.Context, s *session, runID, question string, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := s.engine(ctx)
	if err != nil {
		return err
	}
	answer, stats, err := e.Ask(ctx, runID, question)
	if err != nil {
		return notFound(err, "run", runID)
	}
	if asJSON {
		return s.printJSON(answerOutput{RunID: runID, Question: question, Answer: answer, Providers: stats})
	}
	display.RenderAnswer(s.out, runID, question, answer)
	return nil
}
