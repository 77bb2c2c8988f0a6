package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	tracing "github.com/hanpama/tracegraph/internal/otel"
	"github.com/hanpama/tracegraph/internal/validation"
)

// envPrefix prefixes the environment variable of every serve setting, e.g.
// TRACEGRAPH_OTEL_ENDPOINT for otel.endpoint.
const envPrefix = "TRACEGRAPH"

type serveConfig struct {
	Schema        []string      `mapstructure:"schema"`
	Fixture       string        `mapstructure:"fixture"`
	Latency       time.Duration `mapstructure:"latency"`
	Introspection bool          `mapstructure:"introspection"`
	Config        string        `mapstructure:"config"`

	Server   serverConfig   `mapstructure:"server"`
	Executor executorConfig `mapstructure:"executor"`
	Log      logConfig      `mapstructure:"log"`
	Otel     otelConfig     `mapstructure:"otel"`
	Metrics  metricsConfig  `mapstructure:"metrics"`
}

type serverConfig struct {
	Addr            string        `mapstructure:"addr"`
	Pretty          bool          `mapstructure:"pretty"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	MaxBodyBytes    int64         `mapstructure:"max-body-bytes"`
	CORSOrigins     []string      `mapstructure:"cors-origins"`
	MetadataHeaders []string      `mapstructure:"metadata-header"`
	GraphiQL        bool          `mapstructure:"graphiql"`
}

type executorConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	MaxDepth      int `mapstructure:"max-depth"`
	MaxComplexity int `mapstructure:"max-complexity"`
}

type logConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type otelConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Protocol    string        `mapstructure:"protocol"`
	Insecure    bool          `mapstructure:"insecure"`
	Service     string        `mapstructure:"service"`
	Environment string        `mapstructure:"environment"`
	SampleRatio float64       `mapstructure:"sample-ratio"`
	Headers     []string      `mapstructure:"header"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Compression string        `mapstructure:"compression"`
	ExportLogs  bool          `mapstructure:"export-logs"`
	TLSCAFile   string        `mapstructure:"tls-ca-file"`
	TLSCertFile string        `mapstructure:"tls-cert-file"`
	TLSKeyFile  string        `mapstructure:"tls-key-file"`
}

type metricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringSlice("schema", nil, "GraphQL SDL file or directory. Repeatable")
	fs.String("fixture", "", "JSON document served as resolver data")
	fs.Duration("latency", 0, "Artificial delay added to every async batch")
	fs.Bool("introspection", true, "Enable GraphQL introspection")
	fs.String("config", "", "Config file (yaml, json or toml)")

	fs.String("server.addr", ":8080", "HTTP listen address")
	fs.Bool("server.pretty", false, "Pretty-print JSON responses")
	fs.Duration("server.timeout", 10*time.Second, "Per-request timeout")
	fs.Duration("server.shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	fs.Int64("server.max-body-bytes", 1<<20, "Request body limit, 0 for none")
	fs.StringSlice("server.cors-origins", nil, "Allowed CORS origins")
	fs.StringSlice("server.metadata-header", nil, "Forward HTTP header to the runtime as metadata. Repeatable")
	fs.Bool("server.graphiql", true, "Serve GraphiQL to browsers")

	fs.Int("executor.concurrency", 4, "Parallel completions per async batch")
	fs.Int("executor.max-depth", 0, "Reject queries nested deeper than this, 0 for no limit")
	fs.Int("executor.max-complexity", 0, "Reject queries selecting more fields than this, 0 for no limit")

	fs.String("log.level", "info", "Log level (debug, info, warn, error)")
	fs.String("log.format", "text", "Log format (text, json)")

	fs.String("otel.endpoint", "", "OTLP collector endpoint, empty disables export")
	fs.String("otel.protocol", "grpc", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("otel.insecure", false, "Disable TLS towards the collector")
	fs.String("otel.service", "tracegraph", "OpenTelemetry service name")
	fs.String("otel.environment", "", "deployment.environment resource attribute")
	fs.Float64("otel.sample-ratio", 1, "Trace sampling ratio")
	fs.StringSlice("otel.header", nil, "Exporter header as key=value. Repeatable")
	fs.Duration("otel.timeout", 0, "Exporter timeout")
	fs.String("otel.compression", "", "Exporter compression (gzip)")
	fs.Bool("otel.export-logs", false, "Also export logs over OTLP")
	fs.String("otel.tls-ca-file", "", "Collector CA certificate")
	fs.String("otel.tls-cert-file", "", "Client certificate for mTLS")
	fs.String("otel.tls-key-file", "", "Client key for mTLS")

	fs.Bool("metrics.enabled", true, "Serve Prometheus metrics")
	fs.String("metrics.path", "/metrics", "Metrics endpoint path")
	return fs
}

// loadServeConfig resolves the serve settings. Explicit flags win over
// environment variables, which win over the config file and flag defaults.
func loadServeConfig(fs *pflag.FlagSet, args []string, getenv func(string) string) (*serveConfig, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	for _, key := range v.AllKeys() {
		if val := getenv(envName(key)); val != "" {
			if f := fs.Lookup(key); f == nil || !f.Changed {
				v.Set(key, val)
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg serveConfig
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envName maps a setting key to its environment variable.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(envReplacer.Replace(key))
}

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

func (c *serveConfig) validate() error {
	var errs []error
	if len(c.Schema) == 0 {
		errs = append(errs, errors.New("--schema is required"))
	}
	if c.Executor.Concurrency < 1 {
		errs = append(errs, errors.New("executor.concurrency must be at least 1"))
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		errs = append(errs, errors.New("otel.sample-ratio must be within [0, 1]"))
	}
	if _, err := c.otelHeaders(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *serveConfig) otelHeaders() (map[string]string, error) {
	if len(c.Otel.Headers) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(c.Otel.Headers))
	for _, h := range c.Otel.Headers {
		k, val, ok := strings.Cut(h, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid otel.header %q, want key=value", h)
		}
		out[k] = strings.TrimSpace(val)
	}
	return out, nil
}

func (c *serveConfig) tracing() tracing.Config {
	headers, _ := c.otelHeaders()
	return tracing.Config{
		ServiceName:      c.Otel.Service,
		ServiceVersion:   version,
		Environment:      c.Otel.Environment,
		TraceSampleRatio: c.Otel.SampleRatio,
		Endpoint:         c.Otel.Endpoint,
		Protocol:         c.Otel.Protocol,
		Insecure:         c.Otel.Insecure,
		TLSCAFile:        c.Otel.TLSCAFile,
		TLSCertFile:      c.Otel.TLSCertFile,
		TLSKeyFile:       c.Otel.TLSKeyFile,
		Headers:          headers,
		Timeout:          c.Otel.Timeout,
		Compression:      c.Otel.Compression,
		ExportLogs:       c.Otel.ExportLogs,
	}
}

func (c *serveConfig) limits() validation.Limits {
	return validation.Limits{MaxDepth: c.Executor.MaxDepth, MaxComplexity: c.Executor.MaxComplexity}
}
