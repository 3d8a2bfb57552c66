package catalog

import (
	"reflect"
	"testing"
)

func TestProfileFromMapDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want UserProfile
	}{
		{
			name: "nil record",
			in:   nil,
			want: UserProfile{Age: DefaultAge},
		},
		{
			name: "typed values",
			in:   map[string]any{"budget": 500.0, "needs": []any{"Roadside", "Roadside", " Family "}, "age": 42.0, "dependents": 2},
			want: UserProfile{Budget: 500, Needs: []string{"Roadside", "Family"}, Age: 42, Dependents: 2},
		},
		{
			name: "strings and garbage",
			in:   map[string]any{"budget": "N/A", "needs": "Theft, Fire,", "age": "35", "income": "-10", "dependents": "0"},
			want: UserProfile{Needs: []string{"Theft", "Fire"}, Age: 35},
		},
		{
			name: "negative budget is neutral",
			in:   map[string]any{"budget": -5, "age": "old"},
			want: UserProfile{Age: DefaultAge},
		},
		{
			name: "age beyond integer range",
			in:   map[string]any{"age": 1e300, "dependents": -1e300},
			want: UserProfile{Age: DefaultAge},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProfileFromMap(tt.in)
			got.Attributes = nil
			if len(got.Needs) == 0 {
				got.Needs = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ProfileFromMap() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProductFromMap(t *testing.T) {
	p := ProductFromMap(map[string]any{
		"id":             7,
		"name":           "Motor Plus",
		"vendorId":       "v1",
		"premium":        "250.5",
		"tags":           []string{"Roadside", "Theft"},
		"requirements":   []any{"Valid licence"},
		"vendorVerified": "true",
		"minAge":         18,
		"maxAge":         65.0,
		"extra":          "kept",
	})

	if p.ID != "7" || p.Name != "Motor Plus" || p.VendorID != "v1" {
		t.Errorf("identity fields = %q %q %q", p.ID, p.Name, p.VendorID)
	}
	if p.PremiumAmount != 250.5 {
		t.Errorf("PremiumAmount = %v, want 250.5", p.PremiumAmount)
	}
	if !p.VendorVerified || p.MinAge != 18 || p.MaxAge != 65 {
		t.Errorf("eligibility fields = %v %d %d", p.VendorVerified, p.MinAge, p.MaxAge)
	}
	if !p.HasTag("Theft") || p.HasTag("Fire") {
		t.Errorf("tags = %v", p.Tags)
	}
	if p.Currency != DefaultCurrency || p.Frequency != DefaultFrequency {
		t.Errorf("display defaults = %q %q", p.Currency, p.Frequency)
	}
	if p.Raw["extra"] != "kept" {
		t.Error("raw record not preserved")
	}
}

func TestProductFromMapDefaults(t *testing.T) {
	p := ProductFromMap(map[string]any{"premiumAmount": "free", "minAge": nil, "vendorVerified": "maybe"})
	if p.PremiumAmount != 0 || p.MinAge != DefaultMinAge || p.MaxAge != DefaultMaxAge || p.VendorVerified {
		t.Errorf("defaults not applied: %+v", p)
	}
	if !p.InAgeRange(DefaultAge) {
		t.Error("default range should admit the default age")
	}
	if p.InAgeRange(101) || p.InAgeRange(-1) {
		t.Error("age range bounds not enforced")
	}
}

func TestProductAgeBoundsOutOfRange(t *testing.T) {
	p := ProductFromMap(map[string]any{"minAge": 1e300, "maxAge": -1e300})
	if p.MinAge != DefaultMinAge || p.MaxAge != DefaultMaxAge {
		t.Errorf("age bounds = %d..%d, want defaults", p.MinAge, p.MaxAge)
	}
	if !p.InAgeRange(DefaultAge) {
		t.Error("default age excluded by out-of-range bounds")
	}
}

func TestPremiumAmountTakesPrecedence(t *testing.T) {
	p := ProductFromMap(map[string]any{"premiumAmount": 100, "premium": 900})
	if p.PremiumAmount != 100 {
		t.Errorf("PremiumAmount = %v, want 100", p.PremiumAmount)
	}
}

func TestProductsFromMapsKeepsOrder(t *testing.T) {
	ps := ProductsFromMaps([]map[string]any{{"id": "a"}, {"id": "b"}, nil})
	if len(ps) != 3 || ps[0].ID != "a" || ps[1].ID != "b" || ps[2].ID != "" {
		t.Errorf("ProductsFromMaps = %+v", ps)
	}
}
