package dataflows

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/models"
)

const userAgent = "Mozilla/5.0 (compatible; ThesisGo/1.0)"

// TavilyClient queries the Tavily search API.
type TavilyClient struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
	cache   *CacheManager
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewTavilyClient(cfg *config.Config) *TavilyClient {
	client := resty.New().
		SetBaseURL("https://api.tavily.com").
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	return &TavilyClient{
		client:  client,
		apiKey:  cfg.TavilyAPIKey,
		limiter: newLimiter(cfg.SearchQPS),
		cache:   NewCacheManager(filepath.Join(cfg.DataCacheDir, "search"), time.Hour, cfg.CacheEnabled),
	}
}

func (tc *TavilyClient) Name() string { return config.SearchTavily }

func (tc *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]*models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query cannot be empty")
	}
	if tc.apiKey == "" {
		return nil, errors.New("tavily API key not configured")
	}
	params := map[string]interface{}{"q": query, "n": maxResults}
	var cached []*models.SearchResult
	if tc.cache.Get("tavily", "search", params, &cached) {
		return cached, nil
	}
	if err := tc.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body tavilyResponse
	resp, err := tc.client.R().
		SetContext(ctx).
		SetBody(tavilyRequest{APIKey: tc.apiKey, Query: query, MaxResults: maxResults, SearchDepth: "basic"}).
		SetResult(&body).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tavily search: HTTP %d", resp.StatusCode())
	}

	results := make([]*models.SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, &models.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	_ = tc.cache.Set("tavily", "search", params, results)
	return results, nil
}

// DuckDuckGoClient scrapes the DuckDuckGo HTML endpoint. It needs no key.
type DuckDuckGoClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	baseURL string
}

func NewDuckDuckGoClient(cfg *config.Config) *DuckDuckGoClient {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", userAgent)
	return &DuckDuckGoClient{
		client:  client,
		limiter: newLimiter(cfg.SearchQPS),
		baseURL: "https://html.duckduckgo.com/html/",
	}
}

func (dc *DuckDuckGoClient) Name() string { return config.SearchDuckDuckGo }

func (dc *DuckDuckGoClient) Search(ctx context.Context, query string, maxResults int) ([]*models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query cannot be empty")
	}
	if err := dc.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := dc.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get(dc.baseURL)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("duckduckgo search: HTTP %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}
	return parseDuckDuckGo(doc, maxResults), nil
}

func parseDuckDuckGo(doc *goquery.Document, maxResults int) []*models.SearchResult {
	var results []*models.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		target := resolveDuckDuckGoLink(href)
		if title == "" || target == "" {
			return true
		}
		results = append(results, &models.SearchResult{
			Title:   title,
			URL:     target,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return maxResults <= 0 || len(results) < maxResults
	})
	return results
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect used on result links.
func resolveDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return u.String()
	}
	return ""
}

func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}

// NewSearcher picks the configured backend. Tavily without a key falls back
// to DuckDuckGo.
func NewSearcher(cfg *config.Config) Searcher {
	if cfg.SearchBackend == config.SearchTavily && cfg.TavilyAPIKey != "" {
		return NewTavilyClient(cfg)
	}
	return NewDuckDuckGoClient(cfg)
}
