package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/server"
)

var (
	// ErrClientClosed is returned when the MCP client has been closed.
	ErrClientClosed = errors.New("mcp client closed")

	// ErrToolFailed is returned when the server reports a tool error.
	ErrToolFailed = errors.New("mcp tool failed")
)

// Option configures optional MCP client behaviour.
type Option func(*clientConfig)

type clientConfig struct {
	implementation    sdkmcp.Implementation
	logger            *slog.Logger
	keepAlive         time.Duration
	httpClient        *http.Client
	streamableRetries *int
}

// WithClientInfo sets the client metadata advertised to the MCP server.
func WithClientInfo(name, version string) Option {
	return func(cfg *clientConfig) {
		if name != "" {
			cfg.implementation.Name = name
		}
		if version != "" {
			cfg.implementation.Version = version
		}
	}
}

// WithLogger configures logging for the MCP client.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithKeepAlive configures periodic ping requests to keep the session healthy.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// WithHTTPClient supplies a custom HTTP client for the streamable transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// WithStreamableMaxRetries overrides the reconnect retry count of the
// streamable HTTP transport.
func WithStreamableMaxRetries(retries int) Option {
	return func(cfg *clientConfig) {
		cfg.streamableRetries = &retries
	}
}

// Client calls the recommendation tools of a coverwise MCP server.
type Client struct {
	session *sdkmcp.ClientSession
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewStreamableClient connects to an MCP endpoint over streamable HTTP.
func NewStreamableClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcp: endpoint cannot be empty")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	if cfg.httpClient != nil {
		transport.HTTPClient = cfg.httpClient
	}
	if cfg.streamableRetries != nil {
		transport.MaxRetries = *cfg.streamableRetries
	}
	return connect(ctx, transport, cfg)
}

// Connect performs the MCP handshake over an arbitrary transport.
func Connect(ctx context.Context, transport sdkmcp.Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("mcp: transport cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return connect(ctx, transport, cfg)
}

func connect(ctx context.Context, transport sdkmcp.Transport, cfg clientConfig) (*Client, error) {
	client := &Client{
		logger: cfg.logger,
		closed: make(chan struct{}),
	}
	sdkClient := sdkmcp.NewClient(&cfg.implementation, &sdkmcp.ClientOptions{
		LoggingMessageHandler: func(_ context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				client.logger.Info("mcp server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	})
	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}
	client.session = session
	return client, nil
}

func defaultConfig() clientConfig {
	return clientConfig{
		implementation: sdkmcp.Implementation{
			Name:    "coverwise-client",
			Version: Version,
		},
		logger: logging.WithComponent("mcp-client"),
	}
}

// Close terminates the session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		close(c.closed)
	})
	return c.closeErr
}

// ServerName returns the name the server advertised during initialization.
func (c *Client) ServerName() string {
	res := c.session.InitializeResult()
	if res == nil || res.ServerInfo == nil {
		return ""
	}
	return res.ServerInfo.Name
}

// Tools lists the tool names the server exposes.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	res, err := c.session.ListTools(ctx, &sdkmcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// IngestPolicy calls ingest_policy.
func (c *Client) IngestPolicy(ctx context.Context, args IngestArgs) (server.IngestResponse, error) {
	var out server.IngestResponse
	err := c.call(ctx, ToolIngestPolicy, args, &out)
	return out, err
}

// RecommendProducts calls recommend_products.
func (c *Client) RecommendProducts(ctx context.Context, args RecommendArgs) (advisor.Payload, error) {
	var out advisor.Payload
	err := c.call(ctx, ToolRecommendProducts, args, &out)
	return out, err
}

// RankProducts calls rank_products and returns the ranked product records.
func (c *Client) RankProducts(ctx context.Context, args RecommendArgs) ([]map[string]any, error) {
	var out struct {
		Recommendations []map[string]any `json:"recommendations"`
	}
	if err := c.call(ctx, ToolRankProducts, args, &out); err != nil {
		return nil, err
	}
	return out.Recommendations, nil
}

func (c *Client) call(ctx context.Context, name string, args, out any) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	res, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("mcp: call %s: %w", name, err)
	}
	text := resultText(res)
	if res.IsError {
		return fmt.Errorf("%s: %s: %w", name, text, ErrToolFailed)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("mcp: decode %s result: %w", name, err)
	}
	return nil
}

func (c *Client) ensureOpen() error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
		return nil
	}
}

func resultText(res *sdkmcp.CallToolResult) string {
	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
