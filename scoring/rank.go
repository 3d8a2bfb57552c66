package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/sweetpotato0/coverwise/catalog"
)

// ScoredProduct is a product with its score against a candidate set.
type ScoredProduct struct {
	Product           catalog.Product
	Score             float64
	Breakdown         Breakdown
	MetRequirements   []string
	UnmetRequirements []string
	// Position is the product's index in the ranked input.
	Position int
}

// Rank scores every product against the full list and orders them by score
// descending, then by input position ascending.
func (s *Scorer) Rank(profile catalog.UserProfile, products []catalog.Product) []ScoredProduct {
	candidatePremiums := premiums(products)
	out := make([]ScoredProduct, len(products))
	for i, p := range products {
		b := breakdown(profile, p, candidatePremiums)
		met, unmet := Requirements(profile, p)
		out[i] = ScoredProduct{
			Product:           p,
			Score:             s.Combine(b),
			Breakdown:         b,
			MetRequirements:   met,
			UnmetRequirements: unmet,
			Position:          i,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// TopN returns the first n ranked products. n <= 0 returns all of them.
func TopN(ranked []ScoredProduct, n int) []ScoredProduct {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// Requirements splits the user's needs into those the product covers and
// those it does not. An age range the user falls outside is reported as unmet;
// a declared range the user satisfies is reported as met.
func Requirements(profile catalog.UserProfile, product catalog.Product) (met, unmet []string) {
	met = []string{}
	unmet = []string{}
	for _, need := range profile.Needs {
		if product.HasTag(need) {
			met = append(met, need)
		} else {
			unmet = append(unmet, need)
		}
	}
	if product.MinAge != catalog.DefaultMinAge || product.MaxAge != catalog.DefaultMaxAge {
		label := fmt.Sprintf("Age %d-%d", product.MinAge, product.MaxAge)
		if product.InAgeRange(profile.Age) {
			met = append(met, label)
		} else {
			unmet = append(unmet, label)
		}
	}
	return met, unmet
}

// DisplayScore rounds a score to one decimal place for presentation.
func DisplayScore(score float64) float64 {
	return math.Round(score*10) / 10
}

// MarshalJSON renders the product's original record with the score fields
// merged in, so callers get back what they sent plus the ranking result.
func (sp ScoredProduct) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(sp.Product.Raw)+4)
	if sp.Product.Raw != nil {
		for k, v := range sp.Product.Raw {
			out[k] = v
		}
	} else {
		p := sp.Product
		out["id"] = p.ID
		out["name"] = p.Name
		out["vendorId"] = p.VendorID
		out["vendorName"] = p.VendorName
		out["premiumAmount"] = p.PremiumAmount
		out["currency"] = p.Currency
		out["frequency"] = p.Frequency
		out["tags"] = p.Tags
		out["vendorVerified"] = p.VendorVerified
		out["minAge"] = p.MinAge
		out["maxAge"] = p.MaxAge
	}
	out["score"] = DisplayScore(sp.Score)
	out["matchBreakdown"] = sp.Breakdown
	out["metRequirements"] = sp.MetRequirements
	out["unmetRequirements"] = sp.UnmetRequirements
	return json.Marshal(out)
}
