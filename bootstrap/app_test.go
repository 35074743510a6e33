package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"foundry/action"
	"foundry/api"
	"foundry/config"
	"foundry/controller"
	"foundry/controller/builtin"
	"foundry/di"
	"foundry/odm"
	"foundry/util/goroutine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newApp writes config under a fresh base directory with a ping controller manifest.
func newApp(t *testing.T, cfg map[string]any) string {
	t.Helper()
	base := t.TempDir()
	writeJSON(t, filepath.Join(base, "configuration", "config.json"), cfg)
	writeFile(t, filepath.Join(base, "controller", "ping.json"), `{}`)
	return base
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func get(t *testing.T, b *Bootstrap, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + b.Server().Addr().String() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func spanNames(sr *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func start(t *testing.T, opts RunOptions, options ...Option) *Bootstrap {
	t.Helper()
	options = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, options...)
	b, err := New(opts, options...)
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b
}

func echoCatalog() *controller.Catalog {
	catalog := builtin.NewCatalog()
	catalog.MustRegister("echo", func(reg action.Registrar, _ controller.Manifest) error {
		return reg.Handle(http.MethodPost, "/echo", func(c *action.Context) error {
			body, ok := c.Body()
			if !ok {
				return action.BadRequest("no parsed body")
			}
			return c.JSON(http.StatusOK, body)
		})
	})
	return catalog
}

func TestRun_ServesControllerActions(t *testing.T) {
	port := freePort(t)
	base := newApp(t, map[string]any{
		"express": map[string]any{"host": "127.0.0.1", "port": port, "bodyParser": "json"},
	})
	writeFile(t, filepath.Join(base, "controller", "echo.yaml"), "prefix: /api\n")

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	b := start(t, RunOptions{BaseDir: base}, WithControllerCatalog(echoCatalog()), WithTracerProvider(tp))

	assert.Equal(t, StateRunning, b.State())
	assert.Equal(t, port, b.Server().Port())
	assert.Nil(t, b.ODMConnectionManager())
	require.NotNil(t, b.App())

	status, body := get(t, b, "/ping")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, err := http.Post("http://"+b.Server().Addr().String()+"/api/echo", "application/json", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	echoed, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"n":1}`, string(echoed))

	status, body = get(t, b, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, body = get(t, b, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "foundry_bootstrap_phase_duration_seconds")

	loaded := b.Controllers()
	require.Len(t, loaded, 2)
	assert.Equal(t, "echo", loaded[0].Controller)

	names := spanNames(sr)
	assert.Contains(t, names, "foundry.bootstrap")
	assert.Contains(t, names, "foundry.bootstrap.http")
	assert.Contains(t, names, "foundry.bootstrap.controllers")
	assert.NotContains(t, names, "foundry.bootstrap.odm")
}

func TestRun_InvalidBodyParserNeverListens(t *testing.T) {
	port := freePort(t)
	base := newApp(t, map[string]any{
		"express": map[string]any{"host": "127.0.0.1", "port": port, "bodyParser": "xml"},
	})

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	err = b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidBodyParser)
	assert.Equal(t, StateFailed, b.State())
	assert.Nil(t, b.Server())

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err, "the configured port must still be free")
	require.NoError(t, ln.Close())
}

func post(t *testing.T, b *Bootstrap, path, contentType, body string) (int, string) {
	t.Helper()
	resp, err := http.Post("http://"+b.Server().Addr().String()+path, contentType, strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestRun_BodyParserKinds(t *testing.T) {
	tests := []struct {
		kind        string
		contentType string
		body        string
		want        string
		oversize    string
	}{
		{api.BodyParserJSON, "application/json", `{"n":1}`, `{"n":1}`, `{"padding":"0123456789abcdef"}`},
		{api.BodyParserText, "text/plain; charset=utf-8", "hello", `"hello"`, strings.Repeat("x", 32)},
		{api.BodyParserRaw, "application/octet-stream", "abc", `"YWJj"`, strings.Repeat("\x00", 32)},
		{api.BodyParserURLEncoded, "application/x-www-form-urlencoded", "a=1&b=2", `{"a":"1","b":"2"}`, "a=" + strings.Repeat("1", 30)},
	}
	require.Len(t, tests, len(api.BodyParserKinds()))

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			base := newApp(t, map[string]any{
				"http": map[string]any{
					"host":              "127.0.0.1",
					"port":              0,
					"bodyParser":        tt.kind,
					"bodyParserOptions": map[string]any{"limit": "16b"},
				},
			})
			writeFile(t, filepath.Join(base, "controller", "echo.yaml"), "prefix: /api\n")
			b := start(t, RunOptions{BaseDir: base}, WithControllerCatalog(echoCatalog()))

			status, body := post(t, b, "/api/echo", tt.contentType, tt.body)
			assert.Equal(t, http.StatusOK, status, body)
			assert.JSONEq(t, tt.want, body)

			status, _ = post(t, b, "/api/echo", tt.contentType, tt.oversize)
			assert.Equal(t, http.StatusRequestEntityTooLarge, status)

			// Other content types pass through without a parsed body.
			status, _ = post(t, b, "/api/echo", "application/vnd.foundry", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestRun_Twice(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	b := start(t, RunOptions{BaseDir: base})
	assert.ErrorIs(t, b.Run(context.Background()), ErrAlreadyStarted)
}

func TestRun_UnknownControllerClosesListener(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	writeFile(t, filepath.Join(base, "controller", "mystery.yaml"), "")

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.ErrorIs(t, err, controller.ErrUnknownController)
	assertClosed(t, b)
}

func TestRun_FailureClosesRateLimiter(t *testing.T) {
	goroutine.AssertNoLeaks(t)

	base := newApp(t, map[string]any{"http": map[string]any{
		"host":      "127.0.0.1",
		"port":      0,
		"rateLimit": map[string]any{"enabled": true, "requests": 3, "window": "1m"},
	}})
	writeFile(t, filepath.Join(base, "controller", "mystery.yaml"), "")

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.ErrorIs(t, err, controller.ErrUnknownController)
	assertClosed(t, b)

	// Shutdown after a failed Run closes the limiter a second time without error.
	assert.NoError(t, b.Shutdown(context.Background()))
}

func TestRun_MissingExplicitControllerDir(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})

	b, err := New(RunOptions{
		BaseDir:        base,
		ControllerDirs: []string{filepath.Join(base, "nope")},
	}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Run(context.Background()), fs.ErrNotExist)
	assertClosed(t, b)
}

func TestRun_MissingConventionalDirsAreSkipped(t *testing.T) {
	base := t.TempDir()
	writeJSON(t, filepath.Join(base, "configuration", "config.json"), map[string]any{
		"http": map[string]any{"host": "127.0.0.1", "port": 0},
	})
	b := start(t, RunOptions{BaseDir: base})
	assert.Empty(t, b.Registry().Actions())
	assert.Empty(t, b.Parameters())
}

func assertClosed(t *testing.T, b *Bootstrap) {
	t.Helper()
	assert.Equal(t, StateFailed, b.State())
	server := b.Server()
	require.NotNil(t, server, "the listener was opened before the failure")
	select {
	case <-server.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("listener was not closed")
	}
	_, err := net.DialTimeout("tcp", server.Addr().String(), time.Second)
	assert.Error(t, err)
}

func TestNew_MissingConfiguration(t *testing.T) {
	_, err := New(RunOptions{BaseDir: t.TempDir()}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNew_ExplicitParametersMustExist(t *testing.T) {
	base := newApp(t, map[string]any{})
	_, err := New(RunOptions{
		BaseDir:        base,
		ParameterFiles: []string{filepath.Join(base, "missing.json")},
	}, WithLogger(zaptest.NewLogger(t).Sugar()))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNew_EnvironmentOverrides(t *testing.T) {
	base := newApp(t, map[string]any{
		"http": map[string]any{"port": 4000, "bodyParser": "json", "cors": map[string]any{"allowedOrigins": []string{"*"}}},
	})
	writeJSON(t, filepath.Join(base, "configuration", "config.test.json"), map[string]any{
		"http": map[string]any{"bodyParser": "text"},
	})
	writeJSON(t, filepath.Join(base, "configuration", "parameters.json"), map[string]any{
		"greeting": "hello", "retries": 3,
	})
	writeJSON(t, filepath.Join(base, "configuration", "parameters.test.json"), map[string]any{
		"greeting": "hi",
	})

	t.Setenv(config.EnvVar, "test")
	t.Setenv("FOUNDRY_HTTP_PORT", "4100")

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	cfg, err := b.Config().HTTP()
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, "text", cfg.BodyParser)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)

	assert.Equal(t, "hi", b.Parameters().String("greeting"))
	assert.Equal(t, 3, b.Parameters().Int("retries"))

	params, err := di.Get[config.Parameters](context.Background(), b.Container())
	require.NoError(t, err)
	assert.Equal(t, "hi", params.String("greeting"))
}

func TestNew_ExplicitEnvironmentWins(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"port": 4000}})
	writeJSON(t, filepath.Join(base, "configuration", "config.staging.json"), map[string]any{
		"http": map[string]any{"port": 4200},
	})
	t.Setenv(config.EnvVar, "production")

	b, err := New(RunOptions{BaseDir: base, Environment: "staging"}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	cfg, err := b.Config().HTTP()
	require.NoError(t, err)
	assert.Equal(t, 4200, cfg.Port)
}

func TestRunOptions_Resolve(t *testing.T) {
	paths := RunOptions{BaseDir: "app", ControllerDirs: []string{"custom"}}.resolve()
	assert.Equal(t, []string{filepath.Join("app", "configuration", "config.json")}, paths.config.paths)
	assert.False(t, paths.config.explicit)
	assert.Equal(t, []string{filepath.Join("app", "configuration", "parameters.json")}, paths.parameters.paths)
	assert.Equal(t, []string{"custom"}, paths.controllers.paths)
	assert.True(t, paths.controllers.explicit)
	assert.Equal(t, []string{filepath.Join("app", "document")}, paths.documents.paths)
	assert.Equal(t, []string{filepath.Join("app", "subscriber")}, paths.subscribers.paths)

	assert.Equal(t, []string{filepath.Join("configuration", "config.json")}, RunOptions{}.resolve().config.paths)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_started", StateNotStarted.String())
	assert.Equal(t, "odm_connecting", StateODMConnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestShutdown(t *testing.T) {
	goroutine.AssertNoLeaks(t)
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	server := b.Server()
	require.NoError(t, b.Shutdown(context.Background()))
	select {
	case <-server.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoError(t, server.Err())
}

func TestWaitForShutdown(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	b := start(t, RunOptions{BaseDir: base})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.WaitForShutdown(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go func() { done <- b.WaitForShutdown(ctx) }()
	require.NoError(t, b.Server().Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not notice the server stopping")
	}
}

func TestRun_PreRegisteredActionsUseContainer(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	writeJSON(t, filepath.Join(base, "configuration", "parameters.json"), map[string]any{"greeting": "hello"})

	reg := action.NewRegistry(nil)
	require.NoError(t, reg.Handle(http.MethodGet, "/greet", func(c *action.Context) error {
		params, err := di.Get[config.Parameters](c.Context(), c.Container())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"greeting": params.String("greeting")})
	}))

	b := start(t, RunOptions{BaseDir: base}, WithActionRegistry(reg))
	assert.Same(t, reg, b.Registry())

	status, body := get(t, b, "/greet")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"greeting":"hello"}`, body)
}

func TestRun_BasicAuthAndRateLimit(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	base := newApp(t, map[string]any{"http": map[string]any{
		"host":      "127.0.0.1",
		"port":      0,
		"rateLimit": map[string]any{"enabled": true, "requests": 3, "window": "1m"},
		"basicAuth": map[string]any{"enabled": true, "users": map[string]any{"admin": string(hash)}},
	}})
	b := start(t, RunOptions{BaseDir: base})

	status, _ := get(t, b, "/health")
	assert.Equal(t, http.StatusOK, status, "health is not behind basic auth")

	status, _ = get(t, b, "/ping")
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, "http://"+b.Server().Addr().String()+"/ping", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ = get(t, b, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, status)
}

// fakeDriver is an odm driver whose Open can be held until release is closed.
type fakeDriver struct {
	name    string
	openErr error
	release chan struct{}

	mu       sync.Mutex
	opened   []odm.ConnectionOptions
	indexed  []string
	inserted int
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Open(ctx context.Context, opts odm.ConnectionOptions) (odm.Session, error) {
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.opened = append(d.opened, opts)
	d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d, nil
}

func (d *fakeDriver) Ping(context.Context) error { return nil }

func (d *fakeDriver) EnsureIndexes(_ context.Context, collection string, _ []odm.Index) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexed = append(d.indexed, collection)
	return nil
}

func (d *fakeDriver) Insert(context.Context, string, any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserted++
	return d.inserted, nil
}

func (d *fakeDriver) Close(context.Context) error { return nil }

func odmConfig(driver string) map[string]any {
	return map[string]any{
		"http": map[string]any{"host": "127.0.0.1", "port": 0},
		"odm":  map[string]any{"driver": driver, "uri": "mongodb://db.invalid:27017", "database": "app"},
	}
}

func TestRun_ControllersWaitForODM(t *testing.T) {
	base := newApp(t, odmConfig("mongodb"))
	driver := &fakeDriver{name: "mongodb", release: make(chan struct{})}

	b, err := New(RunOptions{BaseDir: base},
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithDriver("mongodb", func() odm.Driver { return driver }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return b.State() == StateODMConnecting && b.Server() != nil
	}, 5*time.Second, 10*time.Millisecond)

	status, _ := get(t, b, "/ping")
	assert.Equal(t, http.StatusNotFound, status, "no action is bound while the ODM connects")
	assert.False(t, b.Registry().Bound())

	close(driver.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
	}

	status, _ = get(t, b, "/ping")
	assert.Equal(t, http.StatusOK, status)

	manager := b.ODMConnectionManager()
	require.NotNil(t, manager)
	conn, err := manager.GetConnection()
	require.NoError(t, err)
	assert.Equal(t, "mongodb", conn.Driver().Name())
	assert.True(t, conn.IsConnected())
	require.Len(t, driver.opened, 1)
	assert.Equal(t, "app", driver.opened[0].Database)

	status, body := get(t, b, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","checks":{"odm":"ok"}}`, body)
}

func TestRun_ODMFailureReturnsSameErrorAndClosesListener(t *testing.T) {
	boom := errors.New("database unreachable")
	base := newApp(t, odmConfig("mongodb"))

	b, err := New(RunOptions{BaseDir: base},
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithDriver("mongodb", func() odm.Driver { return &fakeDriver{name: "mongodb", openErr: boom} }))
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.Equal(t, boom, err)
	assertClosed(t, b)
	assert.False(t, b.Registry().Bound())
	assert.NotNil(t, b.ODMConnectionManager())
}

func TestRun_MongoConnectFailureClosesListener(t *testing.T) {
	cfg := odmConfig("mongodb")
	cfg["odm"].(map[string]any)["uri"] = "not-a-mongodb-uri"
	base := newApp(t, cfg)

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	require.Error(t, b.Run(context.Background()))
	assertClosed(t, b)
}

func TestRun_UnknownDriverHasNoConnection(t *testing.T) {
	base := newApp(t, odmConfig("postgres"))

	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Run(context.Background()), odm.ErrNoConnection)
	assertClosed(t, b)
}

func TestRun_DocumentsAndSubscribers(t *testing.T) {
	base := newApp(t, odmConfig("mongodb"))
	writeFile(t, filepath.Join(base, "document", "user.yaml"),
		"collection: users\nindexes:\n  - keys: [email]\n    unique: true\nschema:\n  type: object\n  required: [email]\n")
	writeFile(t, filepath.Join(base, "subscriber", "welcome.yaml"), "document: user\nevents: [insert]\n")

	var mu sync.Mutex
	var events []odm.Event
	driver := &fakeDriver{name: "mongodb"}

	b := start(t, RunOptions{BaseDir: base},
		WithDriver("mongodb", func() odm.Driver { return driver }),
		WithSubscriber("welcome", func(_ context.Context, e odm.Event) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		}))

	manager := b.ODMConnectionManager()
	require.Len(t, manager.Documents(), 1)
	require.Len(t, manager.Subscribers(), 1)
	assert.Equal(t, []string{"users"}, driver.indexed)
	assert.Same(t, b.Container(), manager.Container())

	fromContainer, err := di.Get[*odm.ConnectionManager](context.Background(), b.Container())
	require.NoError(t, err)
	assert.Same(t, manager, fromContainer)

	conn, err := manager.GetConnection()
	require.NoError(t, err)
	_, err = conn.Insert(context.Background(), "user", map[string]any{"email": "a@example.com"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "user", events[0].Document)
}

func TestRun_InvalidODMConfiguration(t *testing.T) {
	base := newApp(t, map[string]any{
		"http": map[string]any{"host": "127.0.0.1", "port": 0},
		"odm":  map[string]any{"driver": "mongodb"},
	})
	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	err = b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid odm configuration")
	assertClosed(t, b)
}

func TestLoadControllers_BeforeRun(t *testing.T) {
	base := newApp(t, map[string]any{"http": map[string]any{"host": "127.0.0.1", "port": 0}})
	b, err := New(RunOptions{BaseDir: base}, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	require.NoError(t, b.LoadControllers())
	actions := b.Registry().Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "/ping", actions[0].Path)
	assert.False(t, b.Registry().Bound())
	assert.Nil(t, b.Server())

	require.NoError(t, b.Run(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	assert.Len(t, b.Registry().Actions(), 1)
	status, _ := get(t, b, "/ping")
	assert.Equal(t, http.StatusOK, status)
}
