package market

import (
	"math"
)

// PriceChange returns the absolute and percentage change from the first to
// the last close. Fewer than two closes, or a zero first close, yields zeros.
func PriceChange(closes []float64) (change, pct float64) {
	if len(closes) < 2 || closes[0] == 0 {
		return 0, 0
	}
	first, last := closes[0], closes[len(closes)-1]
	change = last - first
	return change, change / first * 100
}

// Volatility is the sample standard deviation of period returns, in percent.
// It is zero when there are fewer than two returns.
func Volatility(closes []float64) float64 {
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss/float64(len(returns)-1)) * 100
}

// VolumeTrend compares the mean of the last three volumes with the mean of
// the whole window, in percent. Missing or all-zero volume yields zero.
func VolumeTrend(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	avg := mean(volumes)
	if avg == 0 {
		return 0
	}
	tail := volumes
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	return (mean(tail) - avg) / avg * 100
}

// PerformanceScore weights price move 60%, low volatility 20% and volume
// trend 20%. The sign follows the direction of the move; a flat or negative
// move scores negative.
func PerformanceScore(pct, volatility, volumeTrend float64) float64 {
	priceScore := math.Min(math.Abs(pct)*2, 100)
	volatilityScore := math.Max(0, 100-volatility*2)
	volumeScore := math.Max(0, math.Min(volumeTrend+50, 100))

	total := priceScore*0.6 + volatilityScore*0.2 + volumeScore*0.2
	if pct > 0 {
		return total
	}
	return -total
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
