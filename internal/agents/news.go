package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyike/ThesisGo/consts"
	"github.com/dyike/ThesisGo/internal/dataflows"
	"github.com/dyike/ThesisGo/internal/models"
)

const noNews = "No recent web coverage was collected."

// collectNews crawls recent coverage for the research prompt. Search or crawl
// failures only cost the research stage its extra context.
func (a *Agents) collectNews(ctx context.Context, state *models.AnalysisState) string {
	if a.searcher == nil || a.crawler == nil {
		return noNews
	}
	pages, err := dataflows.CompanyNews(ctx, a.searcher, a.crawler, state.Company, a.maxSources)
	if err != nil {
		a.log.Warnf("[Research] news collection for %s failed: %v", state.Company, err)
		return noNews
	}
	if len(pages) == 0 {
		return noNews
	}

	state.Sources = append(state.Sources, pages...)
	state.ToolsUsed = append(state.ToolsUsed, consts.Tool_WebCrawl)
	return formatNews(pages)
}

func formatNews(pages []*models.CrawledPage) string {
	var b strings.Builder
	for i, p := range pages[:min(maxNewsPages, len(pages))] {
		title := p.Title
		if title == "" {
			title = p.URL
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, title, p.URL, dataflows.Truncate(p.Content, newsPageExcerpt))
	}
	return strings.TrimSpace(b.String())
}
