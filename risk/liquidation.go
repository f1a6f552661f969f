package risk

import (
	"math"
	"strings"
)

// Base liquidation parameters before risk adjustments.
const (
	baseMaxLTV             = 0.75
	baseLiquidationPenalty = 0.05
	baseVolatility         = 0.12
)

// LiquidationParams are the lending-market parameters derived for one asset.
type LiquidationParams struct {
	LiquidationThreshold float64            `json:"liquidationThreshold"`
	MaxLTV               float64            `json:"maxLtv"`
	LiquidationPenalty   float64            `json:"liquidationPenalty"`
	HealthFactor         float64            `json:"healthFactor"`
	Volatility           float64            `json:"volatility"`
	Correlation          map[string]float64 `json:"correlation"`
}

// CalculateLiquidationParams derives liquidation parameters from risk
// metrics. tokenName adjusts the correlation estimates; historicalVolatility
// overrides the estimate when positive.
func CalculateLiquidationParams(m Metrics, dist *Distribution, tokenName string, historicalVolatility float64) LiquidationParams {
	volatility := estimateVolatility(m, historicalVolatility)
	maxLTV := calcMaxLTV(m, volatility, dist)
	threshold := calcThreshold(maxLTV, volatility, m)
	penalty := calcPenalty(volatility, m)

	healthFactor := clamp(threshold/maxLTV, 1.0, 2.0)

	return LiquidationParams{
		LiquidationThreshold: threshold,
		MaxLTV:               maxLTV,
		LiquidationPenalty:   penalty,
		HealthFactor:         healthFactor,
		Volatility:           volatility,
		Correlation:          calcCorrelations(tokenName, m, volatility),
	}
}

func estimateVolatility(m Metrics, historical float64) float64 {
	if historical > 0 {
		return clamp(historical, 0, 1)
	}

	volatility := baseVolatility
	if m.Counterparty.DefaultProbability > 0.1 {
		volatility += m.Counterparty.DefaultProbability * 0.1
	}
	if m.Oracle.DataReliability < 0.8 {
		volatility += 0.03
	}
	volatility += (1 - m.Counterparty.SolvencyScore) * 0.05
	return clamp(volatility, 0, 1)
}

func calcMaxLTV(m Metrics, volatility float64, dist *Distribution) float64 {
	ltv := baseMaxLTV

	switch m.Legal.Status {
	case "compliant":
		ltv += 0.05
	case "non-compliant":
		ltv -= 0.15
	case "unknown":
		ltv -= 0.05
	}

	if m.Counterparty.DefaultProbability > 0.1 {
		ltv -= m.Counterparty.DefaultProbability * 0.3
	}
	ltv += (m.Counterparty.SolvencyScore - 0.5) * 0.2

	if volatility > 0.2 {
		ltv -= (volatility - 0.2) * 0.5
	} else if volatility < 0.1 {
		ltv += (0.1 - volatility) * 0.3
	}

	if dist != nil {
		if dist.Concentration > 0.8 {
			ltv -= 0.1
		} else if dist.Concentration > 0.6 {
			ltv -= 0.05
		}
		if dist.TotalHolders > 1000 {
			ltv += 0.05
		} else if dist.TotalHolders < 100 {
			ltv -= 0.05
		}
	}

	if m.Oracle.DataReliability < 0.8 {
		ltv -= 0.05
	}

	return clamp(ltv, 0.30, 0.90)
}

// calcThreshold keeps the liquidation threshold above max LTV so there is a
// buffer before positions become liquidatable.
func calcThreshold(maxLTV, volatility float64, m Metrics) float64 {
	threshold := maxLTV + 0.1
	if volatility > 0.2 {
		threshold += 0.05
	}
	if m.Counterparty.DefaultProbability > 0.1 {
		threshold += m.Counterparty.DefaultProbability * 0.1
	}
	return clamp(threshold, maxLTV+0.05, 0.95)
}

func calcPenalty(volatility float64, m Metrics) float64 {
	penalty := baseLiquidationPenalty
	if volatility > 0.2 {
		penalty += 0.02
	}
	if m.Counterparty.DefaultProbability > 0.1 {
		penalty += m.Counterparty.DefaultProbability * 0.05
	}
	if m.Legal.Status == "non-compliant" {
		penalty += 0.03
	}
	return clamp(penalty, 0.02, 0.15)
}

func calcCorrelations(tokenName string, m Metrics, volatility float64) map[string]float64 {
	sol := 0.35
	usdc := 0.95

	name := strings.ToLower(tokenName)
	if strings.Contains(name, "sol") {
		sol = 0.7
	}
	if strings.Contains(name, "usd") {
		usdc = 0.98
	}

	if volatility > 0.2 {
		usdc -= 0.1
	}
	if m.Legal.Status == "non-compliant" {
		sol += 0.1
		usdc -= 0.1
	}

	return map[string]float64{
		"sol":  clamp(sol, -1, 1),
		"usdc": clamp(usdc, 0, 1),
	}
}

// EstimateHistoricalVolatility annualizes the standard deviation of daily
// returns. Returns 0 when there are fewer than two samples.
func EstimateHistoricalVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(365)
}
