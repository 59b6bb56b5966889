package market

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dyike/ThesisGo/internal/models"
)

const (
	bullishFraction = 0.7
	bearishFraction = 0.3
)

// ComputeInsights derives the market mood from sector breadth, the leading
// sectors, a few stock observations and a coarse risk level.
func ComputeInsights(stocks, sectors []*models.SymbolQuote) models.MarketInsights {
	insights := models.MarketInsights{
		Sentiment:       models.SentimentNeutral,
		TrendingSectors: []string{},
		KeyObservations: []string{},
		RiskLevel:       "medium",
	}

	if len(sectors) > 0 {
		positive := 0
		for _, q := range sectors {
			if q.PriceChangePct > 0 {
				positive++
			}
		}
		frac := float64(positive) / float64(len(sectors))
		insights.PositiveFraction = frac
		switch {
		case frac > bullishFraction:
			insights.Sentiment = models.SentimentBullish
		case frac < bearishFraction:
			insights.Sentiment = models.SentimentBearish
		}

		byChange := append([]*models.SymbolQuote(nil), sectors...)
		sort.SliceStable(byChange, func(i, j int) bool {
			return byChange[i].PriceChangePct > byChange[j].PriceChangePct
		})
		for _, q := range byChange[:min(3, len(byChange))] {
			insights.TrendingSectors = append(insights.TrendingSectors, q.Name)
		}

		insights.RiskLevel = riskLevel(sectors)
	}

	if len(stocks) > 0 {
		total := 0.0
		for _, q := range stocks {
			total += q.PriceChangePct
		}
		insights.KeyObservations = append(insights.KeyObservations,
			fmt.Sprintf("Average stock performance: %.2f%%", total/float64(len(stocks))))

		movers := append([]*models.SymbolQuote(nil), stocks...)
		sort.SliceStable(movers, func(i, j int) bool {
			return math.Abs(movers[i].PriceChangePct) > math.Abs(movers[j].PriceChangePct)
		})
		names := make([]string, 0, 3)
		for _, q := range movers[:min(3, len(movers))] {
			names = append(names, q.Symbol)
		}
		insights.KeyObservations = append(insights.KeyObservations,
			"Largest movers: "+strings.Join(names, ", "))
	}
	return insights
}

// riskLevel grades the mean sector volatility: above 2% daily is high, below
// 1% is low.
func riskLevel(sectors []*models.SymbolQuote) string {
	vols := make([]float64, 0, len(sectors))
	for _, q := range sectors {
		vols = append(vols, q.Volatility)
	}
	switch avg := mean(vols); {
	case avg > 2:
		return "high"
	case avg < 1:
		return "low"
	}
	return "medium"
}
