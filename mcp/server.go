// Package mcp serves the recommendation engines as Model Context Protocol
// tools and provides a typed client for them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/catalog"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/scoring"
	"github.com/sweetpotato0/coverwise/server"
)

// Tool names.
const (
	ToolIngestPolicy      = "ingest_policy"
	ToolRecommendProducts = "recommend_products"
	ToolRankProducts      = "rank_products"
)

// Version is advertised to MCP clients.
const Version = "0.1.0"

// IngestArgs are the arguments of ingest_policy.
type IngestArgs struct {
	VendorID    string `json:"vendor_id,omitempty" jsonschema:"Vendor that owns the policy document"`
	Filename    string `json:"filename,omitempty" jsonschema:"Original file name of the document"`
	ContentType string `json:"content_type,omitempty" jsonschema:"text/plain (default) or text/html"`
	Document    string `json:"document" jsonschema:"Policy document text"`
}

// RecommendArgs are the arguments of recommend_products and rank_products.
type RecommendArgs struct {
	UserProfile map[string]any   `json:"user_profile,omitempty" jsonschema:"User profile with budget, needs, age, category, income and dependents"`
	Query       string           `json:"query,omitempty" jsonschema:"Free-text question used to retrieve policy context"`
	Products    []map[string]any `json:"products" jsonschema:"Candidate products to rank"`
	Mode        string           `json:"mode,omitempty" jsonschema:"ranking or generative; empty picks automatically"`
}

// NewServer registers the recommendation tools on a new MCP server.
func NewServer(ingester server.Ingester, recommender server.Recommender, logger *slog.Logger) *sdkmcp.Server {
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}
	srv := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "coverwise",
		Title:   "Insurance product recommendations",
		Version: Version,
	}, nil)

	addIngestTool(srv, ingester, logger)
	addRecommendTool(srv, recommender)
	addRankTool(srv, recommender)
	return srv
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *sdkmcp.Server) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return srv
	}, nil)
}

func addIngestTool(srv *sdkmcp.Server, ingester server.Ingester, logger *slog.Logger) {
	sdkmcp.AddTool(srv, &sdkmcp.Tool{
		Name:        ToolIngestPolicy,
		Description: "Chunk, embed and index a policy document for retrieval",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a IngestArgs) (*sdkmcp.CallToolResult, any, error) {
		doc, err := server.IngestRequest(a).ToDocument()
		if err != nil {
			return nil, nil, err
		}
		n, err := ingester.Ingest(ctx, doc)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("policy ingested over mcp", "vendor_id", a.VendorID, "chunks", n)
		return jsonResult(server.IngestResponse{Chunks: n})
	})
}

func addRecommendTool(srv *sdkmcp.Server, recommender server.Recommender) {
	sdkmcp.AddTool(srv, &sdkmcp.Tool{
		Name:        ToolRecommendProducts,
		Description: "Recommend insurance products for a user profile, grounded in ingested policy text",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a RecommendArgs) (*sdkmcp.CallToolResult, any, error) {
		payload, err := recommender.Recommend(ctx, advisor.Request{
			Profile:    catalog.ProfileFromMap(a.UserProfile),
			Query:      a.Query,
			Candidates: catalog.ProductsFromMaps(a.Products),
			Mode:       advisor.Mode(a.Mode),
		})
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(payload)
	})
}

func addRankTool(srv *sdkmcp.Server, recommender server.Recommender) {
	sdkmcp.AddTool(srv, &sdkmcp.Tool{
		Name:        ToolRankProducts,
		Description: "Score and rank candidate products against a user profile",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a RecommendArgs) (*sdkmcp.CallToolResult, any, error) {
		ranked := recommender.Rank(catalog.ProfileFromMap(a.UserProfile), catalog.ProductsFromMaps(a.Products))
		if ranked == nil {
			ranked = []scoring.ScoredProduct{}
		}
		return jsonResult(server.RankResponse{Recommendations: ranked})
	})
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("mcp: encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
