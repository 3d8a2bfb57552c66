// Command coverwise serves insurance product recommendations over HTTP and MCP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/sweetpotato0/coverwise/config"
	"github.com/sweetpotato0/coverwise/mcp"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/pkg/telemetry"
	"github.com/sweetpotato0/coverwise/rag/watcher"
	"github.com/sweetpotato0/coverwise/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "coverwise:", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	var (
		flags    globalFlags
		watchDir string
	)

	serve := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), flags, func(ctx context.Context, env *appEnv) error {
			return runServe(ctx, env, watchDir)
		})
	}

	rootCmd := &cobra.Command{
		Use:           "coverwise",
		Short:         "Insurance product recommendations over HTTP and MCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.Flags().StringVar(&watchDir, "watch-dir", "", "Ingest policy documents written to this directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&watchDir, "watch-dir", "", "Ingest policy documents written to this directory")

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP tools over stdin and stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, env *appEnv) error {
				env.logger.Info("serving mcp over stdio")
				return env.mcpServer().Run(ctx, &sdkmcp.StdioTransport{})
			})
		},
	}

	var vendorID string
	ingestCmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Ingest policy documents into the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, env *appEnv) error {
				return runIngest(ctx, env, args, vendorID, cmd.OutOrStdout())
			})
		},
	}
	ingestCmd.Flags().StringVar(&vendorID, "vendor", "", "Vendor id recorded with every document")

	var requestPath string
	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend products for a JSON request read from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, env *appEnv) error {
				return runRecommend(ctx, env, requestPath, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	recommendCmd.Flags().StringVar(&requestPath, "request", "-", "Request file, - for stdin")

	rootCmd.AddCommand(serveCmd, stdioCmd, ingestCmd, recommendCmd)
	return rootCmd
}

// appEnv is the configured process state shared by every command.
type appEnv struct {
	cfg    *config.AppConfig
	app    *app
	logger *slog.Logger
}

func (r *appEnv) mcpServer() *sdkmcp.Server {
	return mcp.NewServer(r.app.retriever, r.app.advisor, logging.WithComponent("mcp"))
}

func withApp(parent context.Context, flags globalFlags, fn func(context.Context, *appEnv) error) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdio mode keeps stdout for the protocol.
	logging.SetLogger(logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level))
	logger := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Writer:         os.Stderr,
		Disable:        cfg.Telemetry.Disable,
		Logger:         logging.WithComponent("telemetry"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTelemetry(context.WithoutCancel(ctx)) }()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx), logger)

	return fn(ctx, &appEnv{cfg: cfg, app: a, logger: logger})
}

func runServe(ctx context.Context, env *appEnv, watchDir string) error {
	cfg := env.cfg
	if watchDir != "" {
		cfg.Watch.Dir = watchDir
	}
	if cfg.Watch.Dir != "" {
		w, err := watcher.New(cfg.Watch.Dir, env.app.retriever,
			watcher.WithPattern(cfg.Watch.Pattern),
			watcher.WithVendorID(cfg.Watch.VendorID),
		)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				env.logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	opts := []server.Option{
		server.WithLogger(logging.WithComponent("server")),
		server.WithConfig(server.Config{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			MaxBodyBytes:    cfg.Server.MaxBodyBytes,
			RateLimit:       cfg.Server.RateLimit,
			RateBurst:       cfg.Server.RateBurst,
		}),
	}
	if cfg.Server.MCPEnabled() {
		opts = append(opts, server.WithHandler("/mcp", mcp.Handler(env.mcpServer())))
	}
	return server.New(env.app.retriever, env.app.advisor, opts...).ListenAndServe(ctx)
}

func runIngest(ctx context.Context, env *appEnv, paths []string, vendorID string, out io.Writer) error {
	total := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		doc := watcher.DocumentFor(filepath.Base(p), string(data), vendorID)
		n, err := env.app.retriever.Ingest(ctx, doc)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", p, err)
		}
		fmt.Fprintf(out, "%s: %d chunks\n", p, n)
		total += n
	}
	fmt.Fprintf(out, "ingested %d chunks from %d files\n", total, len(paths))
	return nil
}

func runRecommend(ctx context.Context, env *appEnv, path string, stdin io.Reader, out io.Writer) error {
	in := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var req server.RecommendRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	payload, err := env.app.advisor.Recommend(ctx, req.AdvisorRequest())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
