package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLiquidationParamsInvariants(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())
	dist := &Distribution{TotalHolders: 1500, Concentration: 0.35}

	p := CalculateLiquidationParams(m, dist, "usdy", 0)

	assert.GreaterOrEqual(t, p.MaxLTV, 0.30)
	assert.LessOrEqual(t, p.MaxLTV, 0.90)
	assert.Greater(t, p.LiquidationThreshold, p.MaxLTV)
	assert.LessOrEqual(t, p.LiquidationThreshold, 0.95)
	assert.GreaterOrEqual(t, p.LiquidationPenalty, 0.02)
	assert.LessOrEqual(t, p.LiquidationPenalty, 0.15)
	assert.GreaterOrEqual(t, p.HealthFactor, 1.0)
	assert.LessOrEqual(t, p.HealthFactor, 2.0)
}

func TestLiquidationParamsDegradeWithRisk(t *testing.T) {
	now := time.Now()
	healthy := CalculateLiquidationParams(DefaultMetrics("TokenMint111", now), nil, "usdy", 0)

	risky := DefaultMetrics("TokenMint111", now)
	risky.Legal.Status = "non-compliant"
	risky.Counterparty.DefaultProbability = 0.3
	risky.Counterparty.SolvencyScore = 0.4
	degraded := CalculateLiquidationParams(risky, nil, "usdy", 0)

	assert.Less(t, degraded.MaxLTV, healthy.MaxLTV)
	assert.Greater(t, degraded.LiquidationPenalty, healthy.LiquidationPenalty)
	assert.Greater(t, degraded.Volatility, healthy.Volatility)
}

func TestHistoricalVolatilityOverride(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())

	p := CalculateLiquidationParams(m, nil, "usdy", 0.5)
	assert.Equal(t, 0.5, p.Volatility)

	// Overrides above 1 are clamped.
	p = CalculateLiquidationParams(m, nil, "usdy", 3)
	assert.Equal(t, 1.0, p.Volatility)
}

func TestCorrelationsByTokenName(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())

	sol := CalculateLiquidationParams(m, nil, "mSOL", 0)
	assert.InDelta(t, 0.7, sol.Correlation["sol"], 0.01)

	stable := CalculateLiquidationParams(m, nil, "USDY", 0)
	assert.InDelta(t, 0.98, stable.Correlation["usdc"], 0.01)
}

func TestEstimateHistoricalVolatility(t *testing.T) {
	assert.Equal(t, 0.0, EstimateHistoricalVolatility(nil))
	assert.Equal(t, 0.0, EstimateHistoricalVolatility([]float64{100}))
	assert.Equal(t, 0.0, EstimateHistoricalVolatility([]float64{100, 100, 100}))

	volatile := EstimateHistoricalVolatility([]float64{100, 110, 95, 120, 90})
	assert.Greater(t, volatile, 0.0)
}
