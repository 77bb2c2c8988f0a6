package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query {
  product: Product
  viewer: String @cacheControl(maxAge: 5, scope: PRIVATE)
}

type Product @cacheControl(maxAge: 60) {
  name: String!
  price: Int
}
`

const testFixture = `{"product": {"name": "Lamp", "price": 30}, "viewer": "ada"}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnv(string) string { return "" }

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"help"}, &out, io.Discard, noEnv))
	require.Contains(t, out.String(), "render-sdl")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help", "serve"}, &out, io.Discard, noEnv))
	require.Contains(t, out.String(), "--otel.endpoint")
	require.Contains(t, out.String(), "TRACEGRAPH_OTEL_ENDPOINT")

	require.Error(t, run(context.Background(), []string{"help", "nope"}, io.Discard, io.Discard, noEnv))
}

func TestUnknownCommand(t *testing.T) {
	var errOut bytes.Buffer
	err := run(context.Background(), []string{"frobnicate"}, io.Discard, &errOut, noEnv)
	require.ErrorContains(t, err, "frobnicate")
	require.Contains(t, errOut.String(), "USAGE")

	require.Error(t, run(context.Background(), nil, io.Discard, io.Discard, noEnv))
}

func TestRenderSDL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.graphql", "type Query { product: Product }")
	writeFile(t, dir, "b.graphqls", "type Product @cacheControl(maxAge: 60) { name: String! }")
	writeFile(t, dir, "notes.txt", "ignored")
	out := filepath.Join(t.TempDir(), "schema.graphql")

	require.NoError(t, run(context.Background(), []string{"render-sdl", "--schema", dir, "--out", out}, io.Discard, io.Discard, noEnv))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "type Product @cacheControl(maxAge: 60)")

	var errOut bytes.Buffer
	require.ErrorContains(t, run(context.Background(), []string{"render-sdl"}, io.Discard, &errOut, noEnv), "--schema")
	require.Contains(t, errOut.String(), "render-sdl FLAGS")
}

// Pattern: Result comparison
func TestLoadServeConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "tracegraph.yaml", `
server:
  addr: ":7000"
  pretty: true
log:
  level: warn
otel:
  service: from-file
`)
	env := map[string]string{
		"TRACEGRAPH_LOG_LEVEL":           "debug",
		"TRACEGRAPH_OTEL_SAMPLE_RATIO":   "0.25",
		"TRACEGRAPH_SERVER_CORS_ORIGINS": "https://a.example,https://b.example",
		"TRACEGRAPH_SERVER_ADDR":         ":7001",
	}
	cfg, err := loadServeConfig(serveFlags(), []string{
		"--schema", "schema.graphql",
		"--config", cfgFile,
		"--server.addr", ":9000",
		"--otel.header", "x-key=secret",
	}, func(k string) string { return env[k] })
	require.NoError(t, err)

	type view struct {
		Addr, Level, Service string
		Pretty               bool
		Ratio                float64
		Origins              []string
		Timeout              time.Duration
		Headers              map[string]string
	}
	headers, err := cfg.otelHeaders()
	require.NoError(t, err)
	got := view{
		Addr:    cfg.Server.Addr,
		Level:   cfg.Log.Level,
		Service: cfg.Otel.Service,
		Pretty:  cfg.Server.Pretty,
		Ratio:   cfg.Otel.SampleRatio,
		Origins: cfg.Server.CORSOrigins,
		Timeout: cfg.Server.Timeout,
		Headers: headers,
	}
	want := view{
		Addr:    ":9000",
		Level:   "debug",
		Service: "from-file",
		Pretty:  true,
		Ratio:   0.25,
		Origins: []string{"https://a.example", "https://b.example"},
		Timeout: 10 * time.Second,
		Headers: map[string]string{"x-key": "secret"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadServeConfig_Invalid(t *testing.T) {
	_, err := loadServeConfig(serveFlags(), nil, noEnv)
	require.ErrorContains(t, err, "--schema is required")

	_, err = loadServeConfig(serveFlags(), []string{"--schema", "s", "--otel.sample-ratio", "2", "--otel.header", "nokey"}, noEnv)
	require.ErrorContains(t, err, "sample-ratio")
	require.ErrorContains(t, err, "otel.header")

	_, err = loadServeConfig(serveFlags(), []string{"--schema", "s", "extra"}, noEnv)
	require.ErrorContains(t, err, "unexpected arguments")
}

func newTestApp(t *testing.T, extra ...string) *app {
	t.Helper()
	dir := t.TempDir()
	args := append([]string{
		"--schema", writeFile(t, dir, "schema.graphql", testSDL),
		"--fixture", writeFile(t, dir, "fixture.json", testFixture),
		"--log.level", "error",
	}, extra...)
	cfg, err := loadServeConfig(serveFlags(), args, noEnv)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { a.shutdown(context.Background()) })
	return a
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_ServesFixture(t *testing.T) {
	a := newTestApp(t)

	rec := post(t, a.handler, `{"query":"{ product { name price } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"product":{"name":"Lamp","price":30}}}`, rec.Body.String())
	require.Equal(t, "max-age=60", rec.Header().Get("Cache-Control"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = post(t, a.handler, `{"query":"{ product { name } viewer }"}`)
	require.Equal(t, "max-age=5, private", rec.Header().Get("Cache-Control"))

	rec = post(t, a.handler, `{"query":"{ __type(name: \"Product\") { name } }"}`)
	require.JSONEq(t, `{"data":{"__type":{"name":"Product"}}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "graphql_requests")

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "ok\n", rec.Body.String())
}

func TestApp_OptionalSurfaces(t *testing.T) {
	a := newTestApp(t, "--metrics.enabled=false", "--introspection=false", "--executor.max-depth", "1")

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(t, a.handler, `{"query":"{ product { name } }"}`)
	require.Contains(t, rec.Body.String(), "Query is nested too deep.")
	require.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"serve",
			"--schema", writeFile(t, dir, "schema.graphql", testSDL),
			"--server.addr", "127.0.0.1:0",
			"--log.level", "error",
		}, io.Discard, io.Discard, noEnv)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
