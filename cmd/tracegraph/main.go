package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hanpama/tracegraph/internal/executor"
	"github.com/hanpama/tracegraph/internal/extension"
	"github.com/hanpama/tracegraph/internal/introspection"
	"github.com/hanpama/tracegraph/internal/logging"
	"github.com/hanpama/tracegraph/internal/metrics"
	tracing "github.com/hanpama/tracegraph/internal/otel"
	"github.com/hanpama/tracegraph/internal/schema"
	"github.com/hanpama/tracegraph/internal/server"
	"github.com/hanpama/tracegraph/internal/staticrt"
)

var version = "dev"

const rootUsage = `tracegraph: traced GraphQL gateway and tools

USAGE:
  tracegraph <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway over a JSON fixture
  render-sdl       Merge & validate GraphQL SDL into a single schema
  version          Print the version
  help             Show help for any command
`

const renderSDLUsage = `render-sdl FLAGS:
  --schema <path>   GraphQL SDL file or directory. Repeatable (required)
  --out <file>      Write rendered SDL to file (default: stdout)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, cmdArgs, stdout, stderr, getenv)
	case "render-sdl":
		return cmdRenderSDL(cmdArgs, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	case "help", "-h", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprintf(stdout, "serve FLAGS (env: %s_<FLAG>, e.g. %s):\n", envPrefix, envName("otel.endpoint"))
		fmt.Fprint(stdout, serveFlags().FlagUsages())
	case "render-sdl":
		fmt.Fprint(stdout, renderSDLUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func cmdRenderSDL(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("render-sdl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	paths := fs.StringSlice("schema", nil, "GraphQL SDL file or directory")
	out := fs.String("out", "", "Write rendered SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, renderSDLUsage)
		return err
	}
	if len(*paths) == 0 {
		fmt.Fprint(stderr, renderSDLUsage)
		return errors.New("--schema is required")
	}
	sch, err := loadSchema(*paths)
	if err != nil {
		return err
	}
	sdl := schema.Render(sch)
	if *out == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(*out, []byte(sdl), 0o644)
}

func cmdServe(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := serveFlags()
	flags.SetOutput(io.Discard)
	cfg, err := loadServeConfig(flags, args, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "run 'tracegraph help serve' for usage\n")
		return err
	}

	a, err := newApp(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer a.shutdown(context.Background())

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.logger.Info("GraphQL server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app is the wired serve command: providers, runtime and HTTP routes.
type app struct {
	logger    *slog.Logger
	handler   http.Handler
	providers *tracing.Providers
	meters    *metrics.Provider
}

func newApp(ctx context.Context, cfg *serveConfig, stdout io.Writer) (*app, error) {
	providers, err := tracing.Setup(ctx, cfg.tracing())
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	a := &app{providers: providers}
	a.logger = logging.New(logging.Config{
		Level:          cfg.Log.Level,
		Format:         cfg.Log.Format,
		Output:         stdout,
		LoggerProvider: providers.LoggerProvider(),
	})

	sch, err := loadSchema(cfg.Schema)
	if err != nil {
		a.shutdown(ctx)
		return nil, err
	}
	var runtime executor.Runtime
	opts := []staticrt.Option{staticrt.WithLatency(cfg.Latency)}
	if cfg.Fixture != "" {
		runtime, err = staticrt.Load(cfg.Fixture, opts...)
		if err != nil {
			a.shutdown(ctx)
			return nil, err
		}
	} else {
		runtime = staticrt.New(nil, opts...)
	}
	if cfg.Introspection {
		runtime, sch = introspection.Wrap(runtime, sch)
	}

	factories := []extension.Factory{
		tracing.NewFactory(providers.Tracer()),
		logging.NewFactory(),
	}
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		a.meters, err = metrics.Setup()
		if err != nil {
			a.shutdown(ctx)
			return nil, err
		}
		f, err := metrics.NewFactory(a.meters.Meter())
		if err != nil {
			a.shutdown(ctx)
			return nil, err
		}
		factories = append(factories, f)
		mux.Handle(cfg.Metrics.Path, a.meters.Handler())
	}

	sopts := []server.Option{
		server.WithLogger(a.logger),
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithExecutorOptions(
			executor.WithExtensions(factories...),
			executor.WithConcurrency(cfg.Executor.Concurrency),
			executor.WithLimits(cfg.limits()),
		),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	h, err := server.New(runtime, sch, sopts...)
	if err != nil {
		a.shutdown(ctx)
		return nil, fmt.Errorf("server init: %w", err)
	}
	mux.Handle("/graphql", otelhttp.NewHandler(h, "graphql"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	a.handler = mux
	return a, nil
}

func (a *app) shutdown(ctx context.Context) {
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	if a.meters != nil {
		_ = a.meters.Shutdown(ctx, logger)
	}
	_ = a.providers.Shutdown(ctx, logger)
}

// loadSchema builds a schema from SDL files. Directories contribute their
// .graphql and .graphqls files, in lexical order.
func loadSchema(paths []string) (*schema.Schema, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && (strings.HasSuffix(path, ".graphql") || strings.HasSuffix(path, ".graphqls")) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, errors.New("load schema: no .graphql files found")
	}

	sources := make([]*ast.Source, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		sources = append(sources, &ast.Source{Name: f, Input: string(data)})
	}
	sch, err := schema.BuildFromSources(sources...)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}
