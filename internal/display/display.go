package display

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/llm"
	"github.com/dyike/ThesisGo/internal/models"
)

const maxWidth = 78

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#F59E0B"))

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	downStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B"))
)

// RenderReport prints a finished analysis run.
func RenderReport(w io.Writer, report *models.RunReport) {
	if report == nil {
		return
	}
	if report.Status != consts.State_Success || report.State == nil {
		DisplayError(w, errors.New(report.Error), "analysis")
		return
	}
	st := report.State

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("INVESTMENT ANALYSIS: %s", st.Company)))
	rec := ExtractRecommendation(st.Recommendation)
	fmt.Fprintf(w, "%s %s\n", sectionStyle.Render("Recommendation:"), recommendationStyle(rec).Render(rec))
	fmt.Fprintf(w, "Confidence: %.1f%% (%d/%d stages)\n", st.Confidence, report.StepsCompleted, report.TotalSteps)
	if !st.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", st.FinishedAt.Sub(st.StartedAt).Round(time.Second))
	}
	fmt.Fprintln(w)

	for _, stage := range consts.Stages {
		fmt.Fprintln(w, sectionStyle.Render(strings.ToUpper(stage.Title())))
		content := st.Output(stage)
		if content == "" {
			fmt.Fprintln(w, mutedStyle.Render("   (No output)"))
		} else {
			writeWrapped(w, content, "   ")
		}
		fmt.Fprintln(w)
	}

	if rev := st.RevisedThesis(); rev != "" {
		fmt.Fprintln(w, sectionStyle.Render("REVISED THESIS"))
		writeWrapped(w, rev, "   ")
		fmt.Fprintln(w)
	}

	if st.Recommendation != "" {
		fmt.Fprintln(w, sectionStyle.Render("FINAL RECOMMENDATION"))
		writeWrapped(w, st.Recommendation, "   ")
		fmt.Fprintln(w)
	}

	if len(st.Sources) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("SOURCES"))
		for _, p := range st.Sources {
			fmt.Fprintf(w, "   - %s\n", p.URL)
		}
		fmt.Fprintln(w)
	}

	if len(st.Errors) > 0 {
		fmt.Fprintln(w, sectionStyle.Render("ERRORS"))
		for _, e := range st.Errors {
			fmt.Fprintln(w, warnStyle.Render("   ! "+e))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Tools used: %s\n", strings.Join(st.ToolsUsed, ", "))
	fmt.Fprintln(w, mutedStyle.Render("This analysis is for informational purposes only and is not financial advice."))
}

// RenderAnswer prints a follow-up answer about a stored run.
func RenderAnswer(w io.Writer, runID, question, answer string) {
	fmt.Fprintln(w, headerStyle.Render("FOLLOW-UP: "+runID))
	fmt.Fprintf(w, "%s %s\n\n", sectionStyle.Render("Q:"), question)
	writeWrapped(w, answer, "   ")
	fmt.Fprintln(w)
}

// RenderScan prints ranked stocks, sectors, indices and the derived insights.
func RenderScan(w io.Writer, res *models.ScanResult) {
	if res == nil {
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("MARKET SCAN  %s  (%d-day window, %s discovery)",
		res.Timestamp.Format("2006-01-02 15:04"), res.LookbackDays, res.DiscoveryMode)))

	fmt.Fprintln(w, sectionStyle.Render("TOP STOCKS"))
	writeQuotes(w, res.TopStocks)
	fmt.Fprintln(w, sectionStyle.Render("SECTORS"))
	writeQuotes(w, res.TopSectors)
	fmt.Fprintln(w, sectionStyle.Render("INDICES"))
	writeQuotes(w, res.Indices)

	in := res.Insights
	fmt.Fprintln(w, sectionStyle.Render("INSIGHTS"))
	fmt.Fprintf(w, "   Sentiment: %s (%.0f%% of sectors up)\n", in.Sentiment, in.PositiveFraction*100)
	fmt.Fprintf(w, "   Risk level: %s\n", in.RiskLevel)
	if len(in.TrendingSectors) > 0 {
		fmt.Fprintf(w, "   Trending sectors: %s\n", strings.Join(in.TrendingSectors, ", "))
	}
	for _, obs := range in.KeyObservations {
		fmt.Fprintf(w, "   - %s\n", obs)
	}

	mix := make([]string, 0, len(res.SourceMix))
	for _, src := range []models.Provenance{consts.SourceQuoteAPI, consts.SourceLLM, consts.SourceWebSearch} {
		if n := res.SourceMix[src]; n > 0 {
			mix = append(mix, fmt.Sprintf("%s=%d", src, n))
		}
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Analyzed %d stocks, %d sectors, %d indices; %d dropped. Sources: %s",
		res.Stats.StocksAnalyzed, res.Stats.SectorsAnalyzed, res.Stats.IndicesAnalyzed, res.Stats.Dropped,
		strings.Join(mix, " "))))
}

func writeQuotes(w io.Writer, quotes []*models.SymbolQuote) {
	if len(quotes) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("   (No data)"))
		return
	}
	fmt.Fprintf(w, "   %-3s %-8s %-28s %10s %9s %7s %8s\n", "#", "SYMBOL", "NAME", "PRICE", "CHANGE", "VOL", "SCORE")
	for i, q := range quotes {
		change := fmt.Sprintf("%+.2f%%", q.PriceChangePct)
		if q.PriceChangePct > 0 {
			change = upStyle.Render(fmt.Sprintf("%9s", change))
		} else {
			change = downStyle.Render(fmt.Sprintf("%9s", change))
		}
		fmt.Fprintf(w, "   %-3d %-8s %-28s %10.2f %s %7.2f %8.2f\n",
			i+1, q.Symbol, truncate(q.Name, 28), q.Price, change, q.Volatility, q.Score)
	}
	fmt.Fprintln(w)
}

// RenderProviders prints the per-provider completion statistics.
func RenderProviders(w io.Writer, stats []llm.ProviderStats, current int) {
	fmt.Fprintln(w, titleStyle.Render("LLM PROVIDERS"))
	if len(stats) == 0 {
		fmt.Fprintln(w, warnStyle.Render("   No providers configured; every request is answered with canned text."))
		return
	}
	for i, s := range stats {
		marker := " "
		if i == current {
			marker = "*"
		}
		line := fmt.Sprintf(" %s %-40s ok=%-4d fail=%-4d rate=%5.1f%% avg=%s",
			marker, s.Provider, s.Successes, s.Failures, s.SuccessRate(), s.AvgLatency.Round(time.Millisecond))
		if s.LastError != "" {
			line += "  last error: " + truncate(s.LastError, 60)
		}
		fmt.Fprintln(w, line)
	}
}

// StageProgress returns an observer printing one line per stage transition.
func StageProgress(w io.Writer) func(stage consts.Stage, status string) {
	return func(stage consts.Stage, status string) {
		switch status {
		case consts.State_Success:
			fmt.Fprintf(w, "%s %s\n", upStyle.Render("[done]"), stage.Title())
		case consts.State_Error:
			fmt.Fprintf(w, "%s %s\n", downStyle.Render("[fail]"), stage.Title())
		default:
			fmt.Fprintf(w, "%s %s...\n", mutedStyle.Render("[....]"), stage.Title())
		}
	}
}

// ExtractRecommendation pulls BUY, SELL or HOLD out of free text.
func ExtractRecommendation(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "BUY"):
		return "BUY"
	case strings.Contains(upper, "SELL"):
		return "SELL"
	case strings.Contains(upper, "HOLD"):
		return "HOLD"
	}
	return "PENDING"
}

func recommendationStyle(rec string) lipgloss.Style {
	switch rec {
	case "BUY":
		return upStyle
	case "SELL":
		return downStyle
	case "HOLD":
		return warnStyle.Bold(true)
	}
	return mutedStyle
}

func DisplayError(w io.Writer, err error, context string) {
	fmt.Fprintln(w, downStyle.Render(fmt.Sprintf("Error in %s:", context)))
	fmt.Fprintf(w, "   %v\n", err)
	fmt.Fprintln(w, mutedStyle.Render("   Check your configuration and API keys"))
}

func DisplayWarning(w io.Writer, message string) {
	fmt.Fprintln(w, warnStyle.Render("Warning: "+message))
}

func DisplaySuccess(w io.Writer, message string) {
	fmt.Fprintln(w, upStyle.Render(message))
}

// writeWrapped word-wraps text at maxWidth keeping paragraph breaks.
func writeWrapped(w io.Writer, text, indent string) {
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := indent + words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > maxWidth {
				fmt.Fprintln(w, line)
				line = indent + word
			} else {
				line += " " + word
			}
		}
		fmt.Fprintln(w, line)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
