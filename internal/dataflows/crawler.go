package dataflows

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/logger"
	"github.com/dyike/ThesisGo/internal/metrics"
	"github.com/dyike/ThesisGo/internal/models"
)

const (
	maxCrawlURLs    = 8
	maxPageChars    = 10000
	minRelevantText = 50
)

var skipURLPatterns = []string{
	"youtube.com", "facebook.com", "twitter.com", "instagram.com",
	"linkedin.com", "reddit.com", "pinterest.com", "tiktok.com",
	"google.com/maps", "google.com/search", "bing.com/search",
	"yahoo.com/search", "duckduckgo.com", "wikipedia.org",
}

var financialDomains = []string{
	"finance.yahoo.com", "investing.com", "marketwatch.com",
	"seekingalpha.com", "cnbc.com", "bloomberg.com", "reuters.com",
	"wsj.com", "ft.com", "nasdaq.com", "marketbeat.com", "tipranks.com",
	"gurufocus.com", "macrotrends.net", "barrons.com", "fool.com",
}

var recentIndicators = []string{
	"recent", "latest", "current", "today", "yesterday",
	"this week", "this month", "this quarter", "this year",
	"latest earnings", "recent results", "current quarter",
	"updated", "announced", "released", "reported",
}

var financialTerms = []string{
	"earnings", "revenue", "profit", "financial", "stock", "market", "investment",
	"quarterly", "annual", "guidance", "analyst", "rating", "price target",
	"balance sheet", "cash flow", "debt", "valuation", "pe ratio", "market cap",
}

// Crawler fetches pages with a bounded number of workers. Every fetch waits
// the pacing delay first so a burst never hits the same hosts at once.
type Crawler struct {
	client  *resty.Client
	workers int
	pacing  time.Duration
	log     *logger.Logger
}

func NewCrawler(cfg *config.Config) *Crawler {
	client := resty.New().
		SetTimeout(20*time.Second).
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &Crawler{
		client:  client,
		workers: cfg.MaxWorkers,
		pacing:  cfg.CrawlPacing,
		log:     logger.Get().Named("crawler"),
	}
}

// Crawl fetches the usable URLs concurrently and reports every page in input
// order. Pages that failed carry Err; pages judged off-topic have Relevant=false.
func (c *Crawler) Crawl(ctx context.Context, urls []string, query string) []*models.CrawledPage {
	targets := make([]string, 0, maxCrawlURLs)
	for _, u := range urls {
		if len(targets) == maxCrawlURLs {
			break
		}
		if !ShouldSkipURL(u) {
			targets = append(targets, u)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	start := time.Now()
	pages := ForEach(ctx, c.workers, targets, func(ctx context.Context, target string) *models.CrawledPage {
		return c.fetch(ctx, target, query)
	})

	ok := 0
	for _, p := range pages {
		switch {
		case p.Err != "":
			metrics.PagesCrawled.WithLabelValues("error").Inc()
		case p.Relevant:
			ok++
			metrics.PagesCrawled.WithLabelValues("relevant").Inc()
		default:
			metrics.PagesCrawled.WithLabelValues("irrelevant").Inc()
		}
	}
	c.log.Infof("[Crawler] %d/%d relevant pages in %s", ok, len(targets), time.Since(start).Round(time.Millisecond))
	return pages
}

func (c *Crawler) fetch(ctx context.Context, target, query string) *models.CrawledPage {
	page := &models.CrawledPage{URL: target, FetchedAt: time.Now()}

	if c.pacing > 0 {
		timer := time.NewTimer(c.pacing)
		select {
		case <-ctx.Done():
			timer.Stop()
			page.Err = ctx.Err().Error()
			return page
		case <-timer.C:
		}
	}

	resp, err := c.client.R().SetContext(ctx).Get(target)
	if err != nil {
		page.Err = err.Error()
		c.log.Debugf("[Crawler] fetch %s failed: %v", target, err)
		return page
	}
	if resp.IsError() {
		page.Err = fmt.Sprintf("HTTP %d", resp.StatusCode())
		return page
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		page.Err = err.Error()
		return page
	}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Content = ExtractText(doc)
	page.Relevant = IsContentRelevant(page.Content, query)
	return page
}

// ExtractText drops non-content elements and returns collapsed body text,
// truncated to maxPageChars.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, noscript, iframe").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len([]rune(text)) > maxPageChars {
		return Truncate(text, maxPageChars) + "..."
	}
	return text
}

// IsContentRelevant scores content against the query. Query-term coverage,
// recency words, financial vocabulary and length each add points; three
// points are required.
func IsContentRelevant(content, query string) bool {
	if len(strings.TrimSpace(content)) < minRelevantText {
		return false
	}
	lower := strings.ToLower(content)

	score := 0.0
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > 0 {
		matches := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		ratio := float64(matches) / float64(len(terms))
		switch {
		case ratio >= 0.3:
			score += 3
		case ratio >= 0.2:
			score += 2
		case ratio >= 0.1:
			score++
		}
	}
	if containsAnyTerm(lower, recentIndicators) || containsYear(lower) {
		score += 2
	}
	if containsAnyTerm(lower, financialTerms) {
		score += 2
	}
	switch n := len(content); {
	case n > 500:
		score++
	case n > 200:
		score += 0.5
	}
	return score >= 3
}

// containsYear reports whether the current or previous calendar year appears.
func containsYear(lower string) bool {
	year := time.Now().Year()
	return strings.Contains(lower, fmt.Sprint(year)) || strings.Contains(lower, fmt.Sprint(year-1))
}

func containsAnyTerm(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func ShouldSkipURL(raw string) bool {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return true
	}
	return containsAnyTerm(lower, skipURLPatterns)
}

func IsFinancialURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return containsAnyTerm(strings.ToLower(u.Host), financialDomains)
}

// CompanyNews searches for recent coverage of a company and crawls the hits.
// Financial domains are preferred; other hits are used only when none match.
func CompanyNews(ctx context.Context, searcher Searcher, crawler *Crawler, company string, maxResults int) ([]*models.CrawledPage, error) {
	query := company + " stock latest news earnings"
	hits, err := searcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	var preferred, other []string
	for _, h := range hits {
		if IsFinancialURL(h.URL) {
			preferred = append(preferred, h.URL)
		} else {
			other = append(other, h.URL)
		}
	}
	urls := preferred
	if len(urls) == 0 {
		urls = other
	}

	var relevant []*models.CrawledPage
	for _, p := range crawler.Crawl(ctx, urls, company) {
		if p.Err == "" && p.Relevant {
			relevant = append(relevant, p)
		}
	}
	return relevant, nil
}
