// Package scoring computes match scores for insurance products and ranks a
// candidate set for a user profile.
//
// A score combines five factors, each in [0,1]:
//
//	raw   = wBudget*budgetFit + wCoverage*coverageMatch + wPrice*priceCompetitiveness
//	      + wTrust*vendorTrust - wPenalty*exclusionPenalty
//	score = clamp(raw*100, 0, 100)
//
// Price competitiveness is relative to the candidate set the product is scored
// against, so the same product can score differently in different sets.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/sweetpotato0/coverwise/catalog"
	errorskg "github.com/sweetpotato0/coverwise/errors"
)

// Neutral is the factor value used when a profile gives no signal.
const Neutral = 0.5

// Vendor trust levels.
const (
	VerifiedTrust   = 1.0
	UnverifiedTrust = 0.6
)

// Weights are the factor weights. ExclusionPenalty is subtracted.
type Weights struct {
	BudgetFit            float64 `json:"budget_fit" yaml:"budget_fit"`
	CoverageMatch        float64 `json:"coverage_match" yaml:"coverage_match"`
	PriceCompetitiveness float64 `json:"price_competitiveness" yaml:"price_competitiveness"`
	VendorTrust          float64 `json:"vendor_trust" yaml:"vendor_trust"`
	ExclusionPenalty     float64 `json:"exclusion_penalty" yaml:"exclusion_penalty"`
}

// DefaultWeights returns 0.30/0.30/0.20/0.10/0.10.
func DefaultWeights() Weights {
	return Weights{
		BudgetFit:            0.3,
		CoverageMatch:        0.3,
		PriceCompetitiveness: 0.2,
		VendorTrust:          0.1,
		ExclusionPenalty:     0.1,
	}
}

// Validate checks every weight lies in [0,1].
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"budget_fit", w.BudgetFit},
		{"coverage_match", w.CoverageMatch},
		{"price_competitiveness", w.PriceCompetitiveness},
		{"vendor_trust", w.VendorTrust},
		{"exclusion_penalty", w.ExclusionPenalty},
	}
	for _, n := range named {
		if math.IsNaN(n.value) || n.value < 0 || n.value > 1 {
			return fmt.Errorf("weight %s must be in [0,1], got %v: %w", n.name, n.value, errorskg.ErrInvalidInput)
		}
	}
	return nil
}

// Breakdown holds the factor values behind a score.
type Breakdown struct {
	BudgetFit            float64 `json:"budgetFit"`
	CoverageMatch        float64 `json:"coverageMatch"`
	PriceCompetitiveness float64 `json:"priceCompetitiveness"`
	VendorTrust          float64 `json:"vendorTrust"`
	ExclusionPenalty     float64 `json:"exclusionPenalty"`
}

// Scorer scores products with a fixed set of weights. It is safe for
// concurrent use.
type Scorer struct {
	weights Weights
}

// New creates a scorer.
func New(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// NewDefault creates a scorer with DefaultWeights.
func NewDefault() *Scorer {
	return New(DefaultWeights())
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Breakdown computes the five factors for product against candidates.
func (s *Scorer) Breakdown(profile catalog.UserProfile, product catalog.Product, candidates []catalog.Product) Breakdown {
	return breakdown(profile, product, premiums(candidates))
}

func breakdown(profile catalog.UserProfile, product catalog.Product, candidatePremiums []float64) Breakdown {
	return Breakdown{
		BudgetFit:            BudgetFit(profile.Budget, product.PremiumAmount),
		CoverageMatch:        CoverageMatch(profile.Needs, product.Tags),
		PriceCompetitiveness: PriceCompetitiveness(product.PremiumAmount, candidatePremiums),
		VendorTrust:          VendorTrust(product.VendorVerified),
		ExclusionPenalty:     ExclusionPenalty(profile.Age, product.MinAge, product.MaxAge),
	}
}

// Combine applies the weights to a breakdown and clamps to [0,100].
func (s *Scorer) Combine(b Breakdown) float64 {
	w := s.weights
	raw := w.BudgetFit*b.BudgetFit +
		w.CoverageMatch*b.CoverageMatch +
		w.PriceCompetitiveness*b.PriceCompetitiveness +
		w.VendorTrust*b.VendorTrust -
		w.ExclusionPenalty*b.ExclusionPenalty
	return clamp(raw*100, 0, 100)
}

// Score returns the match score of product in [0,100].
func (s *Scorer) Score(profile catalog.UserProfile, product catalog.Product, candidates []catalog.Product) float64 {
	return s.Combine(s.Breakdown(profile, product, candidates))
}

// BudgetFit is 1 when premium equals budget and falls linearly with the
// relative gap, floored at 0. Without a budget it is Neutral.
func BudgetFit(budget, premium float64) float64 {
	if budget <= 0 {
		return Neutral
	}
	fit := 1 - math.Abs(premium-budget)/math.Max(budget, premium)
	return math.Max(0, fit)
}

// CoverageMatch is the fraction of needs present in tags. Without needs it is
// Neutral.
func CoverageMatch(needs, tags []string) float64 {
	if len(needs) == 0 {
		return Neutral
	}
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	matched := 0
	for _, n := range needs {
		if _, ok := tagSet[n]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(needs))
}

// PriceCompetitiveness is 1 - rank/len(premiums), where rank is the index of
// the first equal premium after sorting ascending. A premium absent from the
// set is Neutral.
func PriceCompetitiveness(premium float64, premiums []float64) float64 {
	if len(premiums) == 0 {
		return Neutral
	}
	sorted := append([]float64(nil), premiums...)
	sort.Float64s(sorted)
	rank := sort.SearchFloat64s(sorted, premium)
	if rank >= len(sorted) || sorted[rank] != premium {
		return Neutral
	}
	return 1 - float64(rank)/float64(len(sorted))
}

// VendorTrust is VerifiedTrust for verified vendors and UnverifiedTrust otherwise.
func VendorTrust(verified bool) float64 {
	if verified {
		return VerifiedTrust
	}
	return UnverifiedTrust
}

// ExclusionPenalty is 1 when age falls outside [minAge, maxAge].
func ExclusionPenalty(age, minAge, maxAge int) float64 {
	if age < minAge || age > maxAge {
		return 1
	}
	return 0
}

func premiums(products []catalog.Product) []float64 {
	out := make([]float64, len(products))
	for i, p := range products {
		out[i] = p.PremiumAmount
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
