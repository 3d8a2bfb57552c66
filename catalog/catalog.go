// Package catalog turns loosely typed user profile and product records into
// typed values. Missing or malformed fields degrade to documented defaults
// instead of failing, so scoring always receives usable input.
package catalog

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Defaults applied when a record omits a field or carries an unusable value.
const (
	DefaultAge       = 30
	DefaultMinAge    = 0
	DefaultMaxAge    = 100
	DefaultCurrency  = "BWP"
	DefaultFrequency = "Monthly"
)

// UserProfile describes the person recommendations are made for.
// A zero Budget means no budget was given.
type UserProfile struct {
	Budget     float64        `json:"budget"`
	Needs      []string       `json:"needs"`
	Age        int            `json:"age"`
	Category   string         `json:"category,omitempty"`
	Income     float64        `json:"income,omitempty"`
	Dependents int            `json:"dependents,omitempty"`
	Attributes map[string]any `json:"-"`
}

// Product is one insurance product offered by a vendor.
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	VendorID       string         `json:"vendorId,omitempty"`
	VendorName     string         `json:"vendorName,omitempty"`
	Category       string         `json:"category,omitempty"`
	PremiumAmount  float64        `json:"premiumAmount"`
	Currency       string         `json:"currency"`
	Frequency      string         `json:"frequency"`
	Tags           []string       `json:"tags"`
	Requirements   []string       `json:"requirements,omitempty"`
	VendorVerified bool           `json:"vendorVerified"`
	MinAge         int            `json:"minAge"`
	MaxAge         int            `json:"maxAge"`
	Raw            map[string]any `json:"-"`
}

// NewProfile returns a profile holding only defaults.
func NewProfile() UserProfile {
	return UserProfile{Age: DefaultAge}
}

// NewProduct returns a product holding only defaults.
func NewProduct(id string) Product {
	return Product{
		ID:        id,
		Currency:  DefaultCurrency,
		Frequency: DefaultFrequency,
		MinAge:    DefaultMinAge,
		MaxAge:    DefaultMaxAge,
	}
}

// HasBudget reports whether the profile declares a usable budget.
func (p UserProfile) HasBudget() bool {
	return p.Budget > 0
}

// InAgeRange reports whether age lies within the product's eligibility bounds.
func (p Product) InAgeRange(age int) bool {
	return age >= p.MinAge && age <= p.MaxAge
}

// HasTag reports whether the product carries tag.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ProfileFromMap decodes a profile record.
func ProfileFromMap(m map[string]any) UserProfile {
	p := NewProfile()
	if m == nil {
		return p
	}
	p.Attributes = cloneMap(m)
	p.Budget = nonNegative(m["budget"], 0)
	p.Needs = Strings(m["needs"])
	if age, ok := toInt(m["age"]); ok {
		p.Age = age
	}
	p.Category = cast.ToString(m["category"])
	p.Income = nonNegative(m["income"], 0)
	if d, ok := toInt(m["dependents"]); ok && d > 0 {
		p.Dependents = d
	}
	return p
}

// ProductFromMap decodes a product record. Both the scoring field names
// (premiumAmount) and the catalogue names (premium, name, vendorId) are read.
func ProductFromMap(m map[string]any) Product {
	p := NewProduct("")
	if m == nil {
		return p
	}
	p.Raw = cloneMap(m)
	p.ID = firstString(m, "id", "_id", "productId")
	p.Name = firstString(m, "name", "productName")
	p.VendorID = firstString(m, "vendorId", "vendor_id")
	p.VendorName = firstString(m, "vendorName", "companyName", "vendor")
	p.Category = cast.ToString(m["category"])

	premium := m["premiumAmount"]
	if premium == nil {
		premium = m["premium"]
	}
	p.PremiumAmount = nonNegative(premium, 0)

	if c := firstString(m, "currency"); c != "" {
		p.Currency = c
	}
	if f := firstString(m, "frequency"); f != "" {
		p.Frequency = f
	}
	p.Tags = Strings(m["tags"])
	p.Requirements = Strings(m["requirements"])
	if v, err := cast.ToBoolE(m["vendorVerified"]); err == nil {
		p.VendorVerified = v
	}
	if v, ok := toInt(m["minAge"]); ok {
		p.MinAge = v
	}
	if v, ok := toInt(m["maxAge"]); ok {
		p.MaxAge = v
	}
	return p
}

// ProductsFromMaps decodes a candidate list, preserving order.
func ProductsFromMaps(ms []map[string]any) []Product {
	out := make([]Product, len(ms))
	for i, m := range ms {
		out[i] = ProductFromMap(m)
	}
	return out
}

func toInt(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

func nonNegative(v any, def float64) float64 {
	if v == nil {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return def
	}
	return f
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// Strings accepts a list or a comma separated string and returns trimmed,
// de-duplicated, non-empty values in first-seen order.
func Strings(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, cast.ToString(item))
		}
	default:
		items, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil
		}
		raw = items
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
