// Package advisor composes retrieval and ranking into recommendation payloads.
//
// In ranking mode the scorer orders the candidates and the top entries become
// recommendations. In generative mode the retrieved context and the candidates
// are handed to a Generator and its output is parsed leniently. The
// orchestrator holds no scoring logic of its own.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/coverwise/catalog"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/pkg/telemetry"
	"github.com/sweetpotato0/coverwise/rag/tokenizer"
	"github.com/sweetpotato0/coverwise/scoring"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config.
const (
	DefaultTopN     = 3
	DefaultContextK = 3
)

// SourceRanking marks payloads produced by the scorer.
const SourceRanking = "ranking"

// Mode selects how recommendations are produced.
type Mode string

const (
	// ModeAuto uses the generator when one is configured, ranking otherwise.
	ModeAuto Mode = ""
	// ModeRanking always uses the scorer.
	ModeRanking Mode = "ranking"
	// ModeGenerative always uses the generator.
	ModeGenerative Mode = "generative"
)

// ContextSearcher finds policy passages for a query.
type ContextSearcher interface {
	SearchTexts(ctx context.Context, query string, k int) ([]string, error)
}

// Recommendation is one recommended product as shown to the user.
type Recommendation struct {
	ID                string   `json:"id"`
	VendorName        string   `json:"vendorName"`
	ProductName       string   `json:"productName"`
	Score             float64  `json:"score"`
	Premium           float64  `json:"premium"`
	Currency          string   `json:"currency"`
	Frequency         string   `json:"frequency"`
	Tags              []string `json:"tags"`
	MatchBreakdown    any      `json:"matchBreakdown,omitempty"`
	MetRequirements   []string `json:"metRequirements"`
	UnmetRequirements []string `json:"unmetRequirements"`
}

// FromScored converts a ranked product into a Recommendation.
func FromScored(sp scoring.ScoredProduct) Recommendation {
	p := sp.Product
	vendor := p.VendorName
	if vendor == "" {
		vendor = p.VendorID
	}
	return Recommendation{
		ID:                p.ID,
		VendorName:        vendor,
		ProductName:       p.Name,
		Score:             scoring.DisplayScore(sp.Score),
		Premium:           p.PremiumAmount,
		Currency:          p.Currency,
		Frequency:         p.Frequency,
		Tags:              nonNil(p.Tags),
		MatchBreakdown:    sp.Breakdown,
		MetRequirements:   nonNil(sp.MetRequirements),
		UnmetRequirements: nonNil(sp.UnmetRequirements),
	}
}

func (r *Recommendation) applyDefaults(currency, frequency string) {
	if r.Currency == "" {
		r.Currency = currency
	}
	if r.Frequency == "" {
		r.Frequency = frequency
	}
	r.Tags = nonNil(r.Tags)
	r.MetRequirements = nonNil(r.MetRequirements)
	r.UnmetRequirements = nonNil(r.UnmetRequirements)
}

// Request is a recommendation request.
type Request struct {
	Profile    catalog.UserProfile
	Query      string
	Candidates []catalog.Product
	Mode       Mode
}

// Payload is the recommendation response.
type Payload struct {
	Recommendations []Recommendation `json:"recommendations"`
	ContextUsed     []string         `json:"context_used"`
	Source          string           `json:"source"`
	ParseStatus     ParseStatus      `json:"parse_status,omitempty"`
	Diagnostic      string           `json:"diagnostic,omitempty"`
}

// Config controls the orchestrator.
type Config struct {
	TopN               int
	ContextK           int
	ContextTokenBudget int
	Currency           string
	Frequency          string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator enables generative mode.
func WithGenerator(g Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithTokenizer sets the tokenizer used for the context budget.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Orchestrator) { o.tokenizer = t }
}

// WithConfig replaces the configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.TopN > 0 {
			o.cfg.TopN = cfg.TopN
		}
		if cfg.ContextK > 0 {
			o.cfg.ContextK = cfg.ContextK
		}
		if cfg.ContextTokenBudget > 0 {
			o.cfg.ContextTokenBudget = cfg.ContextTokenBudget
		}
		if cfg.Currency != "" {
			o.cfg.Currency = cfg.Currency
		}
		if cfg.Frequency != "" {
			o.cfg.Frequency = cfg.Frequency
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator composes retrieval, ranking and generation.
type Orchestrator struct {
	searcher  ContextSearcher
	scorer    *scoring.Scorer
	generator Generator
	tokenizer tokenizer.Tokenizer
	cfg       Config
	logger    *slog.Logger
}

// New creates an orchestrator. A nil searcher means no context is retrieved
// and a nil scorer uses the default weights.
func New(searcher ContextSearcher, scorer *scoring.Scorer, opts ...Option) *Orchestrator {
	if scorer == nil {
		scorer = scoring.NewDefault()
	}
	o := &Orchestrator{
		searcher: searcher,
		scorer:   scorer,
		cfg: Config{
			TopN:      DefaultTopN,
			ContextK:  DefaultContextK,
			Currency:  catalog.DefaultCurrency,
			Frequency: catalog.DefaultFrequency,
		},
		logger: logging.WithComponent("advisor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Rank scores candidates against each other and returns the top N.
func (o *Orchestrator) Rank(profile catalog.UserProfile, candidates []catalog.Product) []scoring.ScoredProduct {
	return scoring.TopN(o.scorer.Rank(profile, candidates), o.cfg.TopN)
}

// Recommend retrieves context for the request and produces recommendations.
func (o *Orchestrator) Recommend(ctx context.Context, req Request) (payload Payload, err error) {
	mode := o.resolveMode(req.Mode)
	ctx, span := telemetry.Start(ctx, "advisor.Recommend",
		attribute.String("mode", string(mode)),
		attribute.Int("candidates", len(req.Candidates)),
	)
	defer func() { telemetry.End(span, err) }()

	if mode == ModeGenerative && o.generator == nil {
		return Payload{}, fmt.Errorf("generative recommendations need a generator: %w", errorskg.ErrMissingConfiguration)
	}

	if mode == ModeRanking {
		var (
			contextUsed []string
			ranked      []scoring.ScoredProduct
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var rerr error
			contextUsed, rerr = o.retrieveContext(gctx, req)
			return rerr
		})
		g.Go(func() error {
			ranked = o.Rank(req.Profile, req.Candidates)
			return nil
		})
		if err := g.Wait(); err != nil {
			return Payload{}, err
		}
		recs := make([]Recommendation, len(ranked))
		for i, sp := range ranked {
			recs[i] = FromScored(sp)
		}
		return Payload{
			Recommendations: recs,
			ContextUsed:     contextUsed,
			Source:          SourceRanking,
		}, nil
	}

	contextUsed, err := o.retrieveContext(ctx, req)
	if err != nil {
		return Payload{}, err
	}

	in := NewGenerationInput(req.Profile, contextUsed, req.Candidates)
	raw, err := o.generator.Generate(ctx, in)
	if err != nil {
		if errors.Is(err, errorskg.ErrMissingConfiguration) {
			return Payload{}, fmt.Errorf("generator %s unavailable: %w", o.generator.Name(), err)
		}
		return Payload{}, fmt.Errorf("generator %s: %w", o.generator.Name(), err)
	}

	result := ParseRecommendations(raw)
	for i := range result.Recommendations {
		result.Recommendations[i].applyDefaults(o.cfg.Currency, o.cfg.Frequency)
	}
	payload = Payload{
		Recommendations: result.Recommendations,
		ContextUsed:     contextUsed,
		Source:          o.generator.Name(),
		ParseStatus:     result.Status,
	}
	if result.Status == StatusFailed {
		payload.Diagnostic = result.Excerpt
		o.logger.Warn("generator output not parseable",
			"generator", o.generator.Name(),
			"output_len", len(raw),
			"excerpt_len", len(result.Excerpt),
			"error", errorskg.ErrMalformedOutput,
		)
	}
	span.SetAttributes(attribute.String("parse_status", string(result.Status)))
	return payload, nil
}

func (o *Orchestrator) resolveMode(m Mode) Mode {
	switch m {
	case ModeRanking, ModeGenerative:
		return m
	}
	if o.generator != nil {
		return ModeGenerative
	}
	return ModeRanking
}

func (o *Orchestrator) retrieveContext(ctx context.Context, req Request) ([]string, error) {
	if o.searcher == nil {
		return []string{}, nil
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = profileQuery(req.Profile)
	}
	if query == "" {
		return []string{}, nil
	}
	texts, err := o.searcher.SearchTexts(ctx, query, o.cfg.ContextK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	texts = tokenizer.Fit(o.tokenizer, texts, o.cfg.ContextTokenBudget)
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// profileQuery builds a retrieval query from a profile's needs and category.
func profileQuery(p catalog.UserProfile) string {
	parts := append([]string(nil), p.Needs...)
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	return strings.Join(parts, " ")
}
