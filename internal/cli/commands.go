package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/pkg/app"
)

const version = "0.3.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	s := newSession()

	rootCmd := &cobra.Command{
		Use:   "thesisgo",
		Short: "ThesisGo - multi-agent investment research",
		Long: `ThesisGo runs a five-stage research pipeline (research, sentiment, valuation,
thesis, critique) over a rotating pool of LLM providers, and scans the market
for the best performing stocks and sectors.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s.out = cmd.OutOrStdout()
			s.err = cmd.ErrOrStderr()
			return s.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), s)
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(s))
	rootCmd.AddCommand(newAskCmd(s))
	rootCmd.AddCommand(newScanCmd(s))
	rootCmd.AddCommand(newHistoryCmd(s))
	rootCmd.AddCommand(newProvidersCmd(s))
	rootCmd.AddCommand(newConfigCmd(s))
	rootCmd.AddCommand(newVersionCmd())

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&s.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&s.configPath, "config", "", "Configuration file path")
	flags.StringVar(&s.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.BoolVar(&s.einoDebug, "eino-debug", false, "Start the eino visual debug server")

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ThesisGo v%s\n", version)
		},
	}
}

func newProvidersCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider registry built from the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.engine(cmd.Context())
			if err != nil {
				return err
			}
			renderRegistry(s, e)
			return nil
		},
	}
}

// renderRegistry lists the providers in rotation order. Statistics are per
// client, so a fresh registry shows zero counts.
func renderRegistry(s *session, e *app.Engine) {
	providers := e.Providers()
	stats := make([]llm.ProviderStats, 0, len(providers))
	for _, p := range providers {
		stats = append(stats, llm.ProviderStats{Provider: p})
	}
	display.RenderProviders(s.out, stats, 0)
}

func newConfigCmd(s *session) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := s.manager()
			if err != nil {
				return err
			}
			cfg := mgr.Get()
			cfg.ApplyEnv()
			fmt.Fprintf(s.out, "Config file: %s\n\n", mgr.Path())
			showConfig(s, &cfg)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := s.manager()
			if err != nil {
				return err
			}
			cfg := mgr.Get()
			cfg.ApplyEnv()
			return validateConfig(s, &cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:     "set KEY VALUE",
		Short:   "Set one configuration key, e.g. top_n 5",
		Example: "thesisgo config set discovery_mode llm\nthesisgo config set provider_order '[\"groq\",\"gemini\"]'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := s.manager()
			if err != nil {
				return err
			}
			if err := mgr.Set(args[0], args[1]); err != nil {
				return err
			}
			display.DisplaySuccess(s.out, fmt.Sprintf("%s updated in %s", args[0], mgr.Path()))
			return nil
		},
	})

	return configCmd
}

func showConfig(s *session, cfg *config.Config) {
	w := s.out
	fmt.Fprintf(w, "Results Directory:    %s\n", cfg.ResultsDir)
	fmt.Fprintf(w, "Data Directory:       %s\n", cfg.DataDir)
	fmt.Fprintf(w, "History Database:     %s\n", cfg.DBPath)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Provider Order:       %s\n", strings.Join(cfg.ProviderOrder, ", "))
	fmt.Fprintf(w, "Retry Budget:         %d\n", cfg.RetryBudget)
	fmt.Fprintf(w, "Retry Delays (s):     %v\n", cfg.RetryDelaysSec)
	fmt.Fprintf(w, "Temperature:          %.2f\n", cfg.Temperature)
	fmt.Fprintf(w, "Max Tokens:           %d\n", cfg.MaxTokens)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Lookback Days:        %d\n", cfg.LookbackDays)
	fmt.Fprintf(w, "Max Workers:          %d\n", cfg.MaxWorkers)
	fmt.Fprintf(w, "Top N:                %d\n", cfg.TopN)
	fmt.Fprintf(w, "Discovery Mode:       %s\n", cfg.DiscoveryMode)
	fmt.Fprintf(w, "Search Backend:       %s\n", cfg.SearchBackend)
	fmt.Fprintf(w, "Confidence Stages:    %d\n", cfg.ConfidenceStageCount)
	fmt.Fprintf(w, "Graph Runner:         %t\n", cfg.UseGraph)
	fmt.Fprintf(w, "Eino Debug:           %t\n", cfg.EinoDebugEnabled)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Credentials:")
	creds := cfg.Credentials()
	for _, family := range []string{config.FamilyGemini, config.FamilyGroq, config.FamilyOpenAI, config.FamilyDeepSeek} {
		fmt.Fprintf(w, "  %-10s %s\n", family, configured(creds[family]))
	}
	fmt.Fprintf(w, "  %-10s %s\n", "tavily", configured(cfg.TavilyAPIKey != ""))
	fmt.Fprintf(w, "  %-10s %s\n", "longport", configured(cfg.HasLongport()))
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func validateConfig(s *session, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		display.DisplayError(s.out, err, "configuration")
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("directory validation failed: %w", err)
	}

	registry := llm.BuildRegistry(cfg.Credentials(), cfg.ProviderOrder, cfg.FamilyModels)
	if len(registry) == 0 {
		display.DisplayWarning(s.out, "no LLM credentials found; every stage will return placeholder text")
	} else {
		fmt.Fprintf(s.out, "%d provider(s) in rotation, starting with %s\n", len(registry), registry[0])
	}
	if cfg.SearchBackend == config.SearchTavily && cfg.TavilyAPIKey == "" {
		display.DisplayWarning(s.out, "TAVILY_API_KEY not set; web search falls back to DuckDuckGo")
	}
	if !cfg.HasLongport() {
		fmt.Fprintln(s.out, "Longport credentials not set; quotes come from Yahoo only")
	}
	display.DisplaySuccess(s.out, "Configuration is valid")
	return nil
}
