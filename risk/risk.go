// Package risk implements the risk-scoring and liquidation-parameter
// calculators served by the paid data endpoints. The calculators are pure
// arithmetic over metric inputs; they consume the verified caller identity
// only as an opaque requestedBy string and have no coupling to payment
// verification internals.
package risk

import (
	"strings"
	"time"
)

// Rating is a letter risk rating.
type Rating string

const (
	RatingAAA Rating = "AAA"
	RatingAA  Rating = "AA"
	RatingA   Rating = "A"
	RatingBBB Rating = "BBB"
	RatingBB  Rating = "BB"
	RatingB   Rating = "B"
	RatingCCC Rating = "CCC"
	RatingCC  Rating = "CC"
	RatingC   Rating = "C"
	RatingD   Rating = "D"
)

// ratingFloors maps each rating to the lowest score that earns it, checked
// from best to worst.
var ratingFloors = []struct {
	rating Rating
	min    float64
}{
	{RatingAAA, 95},
	{RatingAA, 90},
	{RatingA, 85},
	{RatingBBB, 75},
	{RatingBB, 65},
	{RatingB, 55},
	{RatingCCC, 45},
	{RatingCC, 35},
	{RatingC, 25},
	{RatingD, 0},
}

// LegalCompliance describes an asset's legal standing.
type LegalCompliance struct {
	Status       string    `json:"status"` // compliant, pending, non-compliant, unknown
	Jurisdiction string    `json:"jurisdiction"`
	Structure    string    `json:"structure"`
	LastVerified time.Time `json:"lastVerified"`
}

// CounterpartyRisk describes issuer solvency and default likelihood.
type CounterpartyRisk struct {
	IssuerRating       string    `json:"issuerRating"`
	DefaultProbability float64   `json:"defaultProbability"`
	SolvencyScore      float64   `json:"solvencyScore"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// OracleIntegrity describes the quality of the price feed backing the asset.
type OracleIntegrity struct {
	ConsensusNodes  int       `json:"consensusNodes"`
	DataReliability float64   `json:"dataReliability"`
	LatencyMillis   int       `json:"latencyMillis"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// Metrics bundles the risk inputs for one tokenized asset.
type Metrics struct {
	Legal        LegalCompliance  `json:"legalCompliance"`
	Counterparty CounterpartyRisk `json:"counterpartyRisk"`
	Oracle       OracleIntegrity  `json:"oracleIntegrity"`
}

// Distribution summarizes how widely the token is held.
type Distribution struct {
	TotalHolders  int     `json:"totalHolders"`
	Concentration float64 `json:"concentration"` // top-holder share, 0..1
}

// Score computes the overall risk score in [0, 100]; higher means lower
// risk. Components are weighted: counterparty 0.40, legal 0.25, oracle 0.20,
// distribution 0.15. A nil distribution contributes a neutral 50.
func Score(m Metrics, dist *Distribution) float64 {
	legal := legalComplianceScore(m.Legal)
	counterparty := counterpartyScore(m.Counterparty)
	oracle := oracleScore(m.Oracle)

	distribution := 50.0
	if dist != nil {
		distribution = distributionScore(*dist)
	}

	total := legal*0.25 + counterparty*0.40 + oracle*0.20 + distribution*0.15
	return clamp(total, 0, 100)
}

// RatingFromScore maps a score to its letter rating.
func RatingFromScore(score float64) Rating {
	for _, band := range ratingFloors {
		if score >= band.min {
			return band.rating
		}
	}
	return RatingD
}

func legalComplianceScore(lc LegalCompliance) float64 {
	switch lc.Status {
	case "compliant":
		return 100
	case "pending":
		return 60
	case "non-compliant":
		return 0
	default:
		return 30
	}
}

func counterpartyScore(cr CounterpartyRisk) float64 {
	score := cr.SolvencyScore * 100
	score -= cr.DefaultProbability * 200
	return clamp(score, 0, 100)
}

func oracleScore(oi OracleIntegrity) float64 {
	score := oi.DataReliability * 100
	if oi.ConsensusNodes >= 5 {
		score += 5
	} else if oi.ConsensusNodes < 3 {
		score -= 10
	}
	return clamp(score, 0, 100)
}

func distributionScore(d Distribution) float64 {
	score := 70.0
	if d.Concentration > 0.8 {
		score -= 30
	} else if d.Concentration > 0.6 {
		score -= 15
	}
	if d.TotalHolders > 1000 {
		score += 15
	} else if d.TotalHolders < 100 {
		score -= 15
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultMetrics returns baseline metrics for an asset without live data
// sources attached. The mint string only seeds the compliance fields.
func DefaultMetrics(tokenMint string, now time.Time) Metrics {
	structure := "tokenized_fund"
	if strings.HasPrefix(tokenMint, "So1") {
		structure = "native_asset"
	}
	return Metrics{
		Legal: LegalCompliance{
			Status:       "compliant",
			Jurisdiction: "US",
			Structure:    structure,
			LastVerified: now,
		},
		Counterparty: CounterpartyRisk{
			IssuerRating:       "A",
			DefaultProbability: 0.02,
			SolvencyScore:      0.95,
			LastUpdated:        now,
		},
		Oracle: OracleIntegrity{
			ConsensusNodes:  5,
			DataReliability: 0.99,
			LatencyMillis:   10,
			LastUpdate:      now,
		},
	}
}
