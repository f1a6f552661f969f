package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScoreHealthyAsset(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())
	dist := &Distribution{TotalHolders: 1500, Concentration: 0.35}

	score := Score(m, dist)
	assert.InDelta(t, 94.15, score, 0.01)
	assert.Equal(t, RatingAA, RatingFromScore(score))
}

func TestScoreNonCompliantAsset(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())
	m.Legal.Status = "non-compliant"
	m.Counterparty.DefaultProbability = 0.3
	m.Counterparty.SolvencyScore = 0.4

	healthy := Score(DefaultMetrics("TokenMint111", time.Now()), nil)
	degraded := Score(m, nil)
	assert.Less(t, degraded, healthy)
	assert.Less(t, degraded, 50.0)
}

func TestScoreNilDistributionNeutral(t *testing.T) {
	m := DefaultMetrics("TokenMint111", time.Now())
	withDist := Score(m, &Distribution{TotalHolders: 500, Concentration: 0.5})
	withNil := Score(m, nil)

	// Neutral 50 versus the mid-band 70 distribution score.
	assert.Less(t, withNil, withDist)
}

func TestRatingBands(t *testing.T) {
	cases := []struct {
		score  float64
		rating Rating
	}{
		{100, RatingAAA},
		{95, RatingAAA},
		{94.9, RatingAA},
		{85, RatingA},
		{75, RatingBBB},
		{65, RatingBB},
		{55, RatingB},
		{45, RatingCCC},
		{35, RatingCC},
		{25, RatingC},
		{10, RatingD},
		{0, RatingD},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.rating, RatingFromScore(tc.score), "score %v", tc.score)
	}
}

func TestScoreClamped(t *testing.T) {
	m := Metrics{
		Legal:        LegalCompliance{Status: "non-compliant"},
		Counterparty: CounterpartyRisk{DefaultProbability: 1, SolvencyScore: 0},
		Oracle:       OracleIntegrity{DataReliability: 0, ConsensusNodes: 0},
	}
	score := Score(m, &Distribution{TotalHolders: 10, Concentration: 0.99})
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}
