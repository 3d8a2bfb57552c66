package advisor

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
	"github.com/sweetpotato0/coverwise/catalog"
)

// ExcerptLimit bounds the raw output kept in a failed parse diagnostic.
const ExcerptLimit = 280

// ParseStatus tags how generator output was understood.
type ParseStatus string

const (
	// StatusParsed means the output was valid JSON as returned.
	StatusParsed ParseStatus = "parsed"
	// StatusRecovered means the output parsed after removing wrapping text.
	StatusRecovered ParseStatus = "recovered"
	// StatusFailed means no recommendation list could be read.
	StatusFailed ParseStatus = "failed"
)

// ParseResult is the outcome of ParseRecommendations.
type ParseResult struct {
	Status          ParseStatus
	Recommendations []Recommendation
	// Excerpt holds the start of the raw output when Status is StatusFailed.
	Excerpt string
}

// ParseRecommendations reads a recommendation list from generator output.
//
// The output is first decoded as is, either as a JSON array or as an object
// with a "recommendations" array. Failing that, reasoning blocks and markdown
// fences are removed and the outermost [...] span is decoded. Output that
// still does not decode yields StatusFailed with an excerpt; it never panics.
func ParseRecommendations(raw string) ParseResult {
	if recs, ok := decodeRecommendations(strings.TrimSpace(raw)); ok {
		return ParseResult{Status: StatusParsed, Recommendations: recs}
	}

	cleaned := stripMarkdownFences(stripThinkingTags(raw))
	if recs, ok := decodeRecommendations(cleaned); ok {
		return ParseResult{Status: StatusRecovered, Recommendations: recs}
	}
	if span, ok := outermost(cleaned, '[', ']'); ok {
		if recs, ok := decodeRecommendations(span); ok {
			return ParseResult{Status: StatusRecovered, Recommendations: recs}
		}
	}
	if span, ok := outermost(cleaned, '{', '}'); ok {
		if recs, ok := decodeRecommendations(span); ok {
			return ParseResult{Status: StatusRecovered, Recommendations: recs}
		}
	}

	return ParseResult{
		Status:          StatusFailed,
		Recommendations: []Recommendation{},
		Excerpt:         excerpt(raw, ExcerptLimit),
	}
}

func decodeRecommendations(s string) ([]Recommendation, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}

	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case map[string]any:
		list, ok := val["recommendations"].([]any)
		if !ok {
			return nil, false
		}
		items = list
	default:
		return nil, false
	}

	recs := make([]Recommendation, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		recs = append(recs, recommendationFromMap(m))
	}
	return recs, true
}

func recommendationFromMap(m map[string]any) Recommendation {
	rec := Recommendation{
		ID:                cast.ToString(m["id"]),
		VendorName:        cast.ToString(m["vendorName"]),
		ProductName:       cast.ToString(m["productName"]),
		Currency:          cast.ToString(m["currency"]),
		Frequency:         cast.ToString(m["frequency"]),
		Tags:              catalog.Strings(m["tags"]),
		MatchBreakdown:    m["matchBreakdown"],
		MetRequirements:   catalog.Strings(m["metRequirements"]),
		UnmetRequirements: catalog.Strings(m["unmetRequirements"]),
	}
	if rec.ProductName == "" {
		rec.ProductName = cast.ToString(m["name"])
	}
	if score, err := cast.ToFloat64E(m["score"]); err == nil {
		rec.Score = clampScore(score)
	}
	premium := m["premium"]
	if premium == nil {
		premium = m["premiumAmount"]
	}
	if p, err := cast.ToFloat64E(premium); err == nil && p >= 0 {
		rec.Premium = p
	}
	return rec
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// stripThinkingTags removes <think>...</think> blocks. An unterminated block
// drops everything after its opening tag.
func stripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// stripMarkdownFences removes the outermost ``` fence pair, if any.
func stripMarkdownFences(s string) string {
	lines := strings.Split(s, "\n")

	start := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i + 1
			break
		}
	}
	end := len(lines)
	for i := len(lines) - 1; i >= start; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}
	if start == 0 && end == len(lines) {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// outermost returns the text from the first open rune to the last close rune.
func outermost(s string, open, close byte) (string, bool) {
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i == -1 || j <= i {
		return "", false
	}
	return s[i : j+1], true
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
