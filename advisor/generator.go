package advisor

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/coverwise/catalog"
	"github.com/sweetpotato0/coverwise/contrib/provider"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/pkg/telemetry"
	"github.com/sweetpotato0/coverwise/prompt"
	"go.opentelemetry.io/otel/attribute"
)

// Generator produces recommendation text from retrieved context and candidate
// products. The returned text is expected to hold a JSON recommendation list
// but may be malformed.
type Generator interface {
	Generate(ctx context.Context, in GenerationInput) (string, error)
	Name() string
}

// CandidateSummary is the view of a product handed to a generator.
type CandidateSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Vendor       string   `json:"vendor"`
	Premium      float64  `json:"premium"`
	Tags         []string `json:"tags"`
	Requirements []string `json:"requirements"`
}

// GenerationInput is everything that crosses into a generator.
type GenerationInput struct {
	UserProfile       map[string]any     `json:"userProfile"`
	ContextChunks     []string           `json:"contextChunks"`
	CandidateProducts []CandidateSummary `json:"candidateProducts"`
}

// NewGenerationInput builds the generator view of a request.
func NewGenerationInput(profile catalog.UserProfile, contextChunks []string, candidates []catalog.Product) GenerationInput {
	summaries := make([]CandidateSummary, len(candidates))
	for i, p := range candidates {
		vendor := p.VendorName
		if vendor == "" {
			vendor = p.VendorID
		}
		summaries[i] = CandidateSummary{
			ID:           p.ID,
			Name:         p.Name,
			Vendor:       vendor,
			Premium:      p.PremiumAmount,
			Tags:         nonNil(p.Tags),
			Requirements: nonNil(p.Requirements),
		}
	}
	if contextChunks == nil {
		contextChunks = []string{}
	}
	return GenerationInput{
		UserProfile:       profileMap(profile),
		ContextChunks:     contextChunks,
		CandidateProducts: summaries,
	}
}

func profileMap(p catalog.UserProfile) map[string]any {
	if len(p.Attributes) > 0 {
		out := make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			out[k] = v
		}
		return out
	}
	out := map[string]any{
		"age":   p.Age,
		"needs": nonNil(p.Needs),
	}
	if p.HasBudget() {
		out["budget"] = p.Budget
	}
	if p.Category != "" {
		out["category"] = p.Category
	}
	if p.Income > 0 {
		out["income"] = p.Income
	}
	if p.Dependents > 0 {
		out["dependents"] = p.Dependents
	}
	return out
}

const systemPrompt = `You are an expert insurance advisor. You only answer with JSON.`

const recommendationPrompt = `USER PROFILE:
{{json .UserProfile}}

CANDIDATE PRODUCTS (use only these for recommendations):
{{range .CandidateProducts}}- ID: {{.ID}}, Name: {{.Name}}, Vendor: {{.Vendor}}, Premium: {{.Premium}}, Tags: [{{join .Tags ", "}}], Requirements: [{{join .Requirements ", "}}]
{{else}}(none)
{{end}}
RELEVANT POLICY CLAUSES (CONTEXT):
{{range .ContextChunks}}{{.}}

{{else}}(none)

{{end}}TASK:
1. Analyse the user profile against the candidate products and their requirements.
2. Select the top {{.TopN}} products that best match the user's needs and whose requirements the user meets.
3. A product whose requirement the user does not meet may still be recommended if it is a strong match; list that requirement as unmet.
4. Use the context for specific coverage details.

OUTPUT FORMAT:
Return a JSON array of objects without markdown formatting. Each object has:
id, vendorName, productName, score (0-100), premium (number), currency ("{{.Currency}}"), frequency ("{{.Frequency}}"), tags, matchBreakdown, metRequirements, unmetRequirements.
`

// RecommendationTemplate names the prompt rendered for every generation.
const RecommendationTemplate = "recommendation"

// DefaultTemplates returns a template set holding the built-in
// recommendation prompt.
func DefaultTemplates() *prompt.Manager {
	m := prompt.NewManager()
	_ = m.Register(prompt.MustTemplate(RecommendationTemplate, recommendationPrompt))
	return m
}

// PromptGenerator renders a prompt template and sends it to a completion model.
type PromptGenerator struct {
	completer provider.Completer
	templates *prompt.Manager
	topN      int
	currency  string
	frequency string
}

var _ Generator = (*PromptGenerator)(nil)

// NewPromptGenerator creates a generator over completer. The prompt is the
// RecommendationTemplate entry of templates; nil templates use DefaultTemplates.
func NewPromptGenerator(completer provider.Completer, templates *prompt.Manager, topN int) *PromptGenerator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &PromptGenerator{
		completer: completer,
		templates: templates,
		topN:      topN,
		currency:  catalog.DefaultCurrency,
		frequency: catalog.DefaultFrequency,
	}
}

// Name returns the underlying completer's name.
func (g *PromptGenerator) Name() string {
	if g.completer == nil {
		return "none"
	}
	return g.completer.Name()
}

// Prompt renders the user prompt for in.
func (g *PromptGenerator) Prompt(in GenerationInput) (string, error) {
	return g.templates.Render(RecommendationTemplate, map[string]any{
		"UserProfile":       in.UserProfile,
		"ContextChunks":     in.ContextChunks,
		"CandidateProducts": in.CandidateProducts,
		"TopN":              g.topN,
		"Currency":          g.currency,
		"Frequency":         g.frequency,
	})
}

// Generate renders the prompt and calls the completer.
func (g *PromptGenerator) Generate(ctx context.Context, in GenerationInput) (out string, err error) {
	ctx, span := telemetry.Start(ctx, "advisor.Generate", attribute.String("generator", g.Name()))
	defer func() { telemetry.End(span, err) }()

	if g.completer == nil {
		return "", fmt.Errorf("no completion model configured: %w", errorskg.ErrMissingConfiguration)
	}
	text, err := g.Prompt(in)
	if err != nil {
		return "", err
	}
	return g.completer.Complete(ctx, provider.Request{System: systemPrompt, Prompt: text})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
