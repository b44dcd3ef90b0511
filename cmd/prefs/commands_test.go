package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/prefs/internal/api"
	"github.com/kalambet/prefs/internal/config"
	"github.com/kalambet/prefs/internal/prefs"
	"github.com/kalambet/prefs/internal/storage/memory"
)

var ctx = context.Background()

const testSecret = "cli-test-secret"

// testConfig returns a sqlite-backed configuration rooted in a temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		App:     config.AppConfig{ID: "com.example.cli"},
		Storage: config.StorageConfig{Backend: config.BackendSQLite, DataDir: t.TempDir()},
		Server:  config.ServerConfig{Port: 4100},
		Auth:    config.AuthConfig{Issuer: "prefs", JWTSecret: testSecret},
		Log:     config.LogConfig{Level: "error"},
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes one invocation of the binary against cfg and closes its
// storage afterwards, the way main does.
func runCLI(t *testing.T, cfg config.Config, stdin string, args ...string) cliResult {
	t.Helper()
	a := &app{loadConfig: func() (config.Config, error) { return cfg, nil }}
	root := newRootCmd(a)

	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--no-color"}, args...))

	err := root.ExecuteContext(ctx)
	if a.holder != nil {
		if cerr := a.holder.Close(); cerr != nil {
			t.Errorf("closing holder: %v", cerr)
		}
	}
	return cliResult{stdout: out.String(), stderr: errb.String(), err: err}
}

func mustRun(t *testing.T, cfg config.Config, args ...string) cliResult {
	t.Helper()
	r := runCLI(t, cfg, "", args...)
	if r.err != nil {
		t.Fatalf("prefs %s: %v\nstderr: %s", strings.Join(args, " "), r.err, r.stderr)
	}
	return r
}

func TestSetGet(t *testing.T) {
	cfg := testConfig(t)

	mustRun(t, cfg, "set", "volume", "3", "--type", "int")

	r := mustRun(t, cfg, "get", "volume")
	if strings.TrimSpace(r.stdout) != "3" {
		t.Errorf("get volume = %q, want 3", r.stdout)
	}

	r = mustRun(t, cfg, "get", "volume", "--json")
	var e api.Entry
	if err := json.Unmarshal([]byte(r.stdout), &e); err != nil {
		t.Fatalf("parsing --json output %q: %v", r.stdout, err)
	}
	if e.Type != prefs.KindInt || string(e.Value) != "3" {
		t.Errorf("entry = %+v", e)
	}

	r = runCLI(t, cfg, "", "get", "volume", "--type", "bool")
	if !errors.Is(r.err, prefs.ErrTypeMismatch) {
		t.Errorf("get --type bool: err = %v, want ErrTypeMismatch", r.err)
	}
}

func TestSetDefaultTypeIsString(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "theme", "dark")

	r := mustRun(t, cfg, "get", "theme", "--type", "string")
	if strings.TrimSpace(r.stdout) != "dark" {
		t.Errorf("get theme = %q", r.stdout)
	}
}

func TestSetRejectsBadValue(t *testing.T) {
	cfg := testConfig(t)
	if r := runCLI(t, cfg, "", "set", "n", "abc", "--type", "int"); r.err == nil {
		t.Error("expected error for non-integer int value")
	}
	if r := runCLI(t, cfg, "", "set", "n", "1", "--type", "double"); r.err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestGetMissing(t *testing.T) {
	r := runCLI(t, testConfig(t), "", "get", "nope")
	if !errors.Is(r.err, prefs.ErrKeyAbsent) {
		t.Errorf("err = %v, want ErrKeyAbsent", r.err)
	}
}

func TestRmAndClear(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "a", "1", "--type", "long")
	mustRun(t, cfg, "set", "b", "true", "--type", "bool")

	mustRun(t, cfg, "rm", "a")
	if r := runCLI(t, cfg, "", "get", "a"); !errors.Is(r.err, prefs.ErrKeyAbsent) {
		t.Errorf("a after rm: err = %v", r.err)
	}

	r := mustRun(t, cfg, "clear")
	if !strings.Contains(r.stderr, "--confirm") {
		t.Errorf("clear without confirm should warn, stderr = %q", r.stderr)
	}
	if r := runCLI(t, cfg, "", "get", "b"); r.err != nil {
		t.Errorf("b removed without --confirm: %v", r.err)
	}

	mustRun(t, cfg, "clear", "--confirm")
	r = mustRun(t, cfg, "list")
	if !strings.Contains(r.stdout, "No preferences stored.") {
		t.Errorf("list after clear = %q", r.stdout)
	}
}

func TestListSorted(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "zeta", "z")
	mustRun(t, cfg, "set", "alpha", "1.5", "--type", "float")

	r := mustRun(t, cfg, "list")
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("list lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "alpha  float  1.5") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "zeta  string  z") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestExportImport(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "flag", "true", "--type", "bool")
	mustRun(t, cfg, "set", "count", "7", "--type", "int")
	mustRun(t, cfg, "set", "big", "9000000000", "--type", "long")
	mustRun(t, cfg, "set", "name", "Ada Lovelace")

	out := filepath.Join(t.TempDir(), "prefs.jsonl")
	mustRun(t, cfg, "export", "--output", out)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 4 {
		t.Fatalf("exported %d lines, want 4:\n%s", n, data)
	}

	mustRun(t, cfg, "import", out, "--app", "com.example.copy")

	copyCfg := cfg
	copyCfg.App.ID = "com.example.copy"
	for key, want := range map[string]string{"flag": "true", "count": "7", "big": "9000000000", "name": "Ada Lovelace"} {
		r := mustRun(t, copyCfg, "get", key)
		if strings.TrimSpace(r.stdout) != want {
			t.Errorf("imported %s = %q, want %q", key, r.stdout, want)
		}
	}
	r := mustRun(t, copyCfg, "get", "count", "--type", "int")
	if strings.TrimSpace(r.stdout) != "7" {
		t.Errorf("count kind lost on import: %q", r.stdout)
	}
}

func TestExportImportNonFiniteFloats(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "ratio", "NaN", "--type", "float")
	mustRun(t, cfg, "set", "limit", "-Inf", "--type", "float")

	if r := mustRun(t, cfg, "get", "ratio", "--json"); !strings.Contains(r.stdout, `"value":"NaN"`) {
		t.Errorf("get --json = %q", r.stdout)
	}

	out := filepath.Join(t.TempDir(), "prefs.jsonl")
	mustRun(t, cfg, "export", "--output", out)
	mustRun(t, cfg, "import", out, "--app", "com.example.copy")

	copyCfg := cfg
	copyCfg.App.ID = "com.example.copy"
	if r := mustRun(t, copyCfg, "get", "ratio", "--type", "float"); strings.TrimSpace(r.stdout) != "NaN" {
		t.Errorf("imported ratio = %q", r.stdout)
	}
	if r := mustRun(t, copyCfg, "get", "limit", "--type", "float"); strings.TrimSpace(r.stdout) != "-Inf" {
		t.Errorf("imported limit = %q", r.stdout)
	}
}

func TestImportFromStdinRejectsBadLine(t *testing.T) {
	cfg := testConfig(t)
	input := `{"key":"ok","type":"int","value":1}
{"key":"bad","type":"int","value":"x"}
`
	r := runCLI(t, cfg, input, "import", "-")
	if r.err == nil || !strings.Contains(r.err.Error(), "line 2") {
		t.Fatalf("err = %v, want failure on line 2", r.err)
	}
	if r := mustRun(t, cfg, "get", "ok"); strings.TrimSpace(r.stdout) != "1" {
		t.Errorf("line 1 not imported: %q", r.stdout)
	}
}

func TestObjectPutGet(t *testing.T) {
	cfg := testConfig(t)

	mustRun(t, cfg, "object", "put", "user", `{"name":"Ada","langs":["go"]}`)
	r := mustRun(t, cfg, "object", "get", "user")

	var got map[string]any
	if err := json.Unmarshal([]byte(r.stdout), &got); err != nil {
		t.Fatalf("object get output %q: %v", r.stdout, err)
	}
	if got["name"] != "Ada" {
		t.Errorf("object = %v", got)
	}

	file := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(file, []byte(`{"n": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, cfg, "object", "put", "fromfile", "@"+file)
	if r := mustRun(t, cfg, "object", "get", "fromfile"); !strings.Contains(r.stdout, `"n": 1`) {
		t.Errorf("object from file = %q", r.stdout)
	}

	if r := runCLI(t, cfg, "", "object", "put", "bad", "{nope"); r.err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestObjectGetOfPrimitiveFails(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "n", "1", "--type", "int")

	r := runCLI(t, cfg, "", "object", "get", "n")
	var derr *prefs.DecodeError
	if !errors.As(r.err, &derr) {
		t.Errorf("err = %v, want *prefs.DecodeError", r.err)
	}
}

func TestAppFlagIsolatesNamespaces(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "set", "k", "one", "--app", "app.one")
	mustRun(t, cfg, "set", "k", "two", "--app", "app.two")

	if r := mustRun(t, cfg, "get", "k", "--app", "app.one"); strings.TrimSpace(r.stdout) != "one" {
		t.Errorf("app.one k = %q", r.stdout)
	}

	r := mustRun(t, cfg, "namespaces")
	if !strings.Contains(r.stdout, "app.one") || !strings.Contains(r.stdout, "app.two") {
		t.Errorf("namespaces = %q", r.stdout)
	}
}

func TestNamespacesRequiresSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendMemory
	if r := runCLI(t, cfg, "", "namespaces"); r.err == nil {
		t.Error("expected error for memory backend")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "redis"
	r := runCLI(t, cfg, "", "list")
	if r.err == nil || !strings.Contains(r.err.Error(), "invalid configuration") {
		t.Errorf("err = %v, want invalid configuration", r.err)
	}
}

func TestConfigShowMasksSecret(t *testing.T) {
	r := mustRun(t, testConfig(t), "config", "show")
	if strings.Contains(r.stdout, testSecret) {
		t.Error("config show printed the JWT secret")
	}
	if !strings.Contains(r.stdout, "app.id = com.example.cli") {
		t.Errorf("config show = %q", r.stdout)
	}
}

func TestTokenIssue(t *testing.T) {
	cfg := testConfig(t)
	r := mustRun(t, cfg, "token", "issue", "--subject", "com.example.other", "--ttl", "1h")
	tok := strings.TrimSpace(r.stdout)

	h := api.NewHandler(api.Deps{Backend: memory.New(), Secret: testSecret, Issuer: "prefs"})
	req := httptest.NewRequest("GET", "/prefs/missing", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an authorized miss: %s", w.Code, w.Body.String())
	}

	cfg.Auth.JWTSecret = ""
	if r := runCLI(t, cfg, "", "token", "issue"); r.err == nil {
		t.Error("expected error without a signing secret")
	}
}

func TestOpenBackend(t *testing.T) {
	cfg := testConfig(t)

	cfg.Storage.Backend = config.BackendMemory
	if b, err := openBackend(ctx, cfg); err != nil || b == nil {
		t.Errorf("memory backend: %v, %v", b, err)
	}

	cfg.Storage.Backend = "bogus"
	if _, err := openBackend(ctx, cfg); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg.Storage.Backend = config.BackendDynamoDB
	cfg.Dynamo.Table = ""
	if _, err := openBackend(ctx, cfg); err == nil {
		t.Error("expected error for dynamodb without a table")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServeAndStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendMemory
	cfg.Server.Port = freePort(t)

	a := &app{loadConfig: func() (config.Config, error) { return cfg, nil }}
	root := newRootCmd(a)
	root.SetArgs([]string{"status"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err != nil {
		t.Fatalf("setup via status: %v", err)
	}
	t.Cleanup(func() { a.holder.Close() })

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.runServer(serveCtx, false, strings.NewReader(""), &bytes.Buffer{}) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	up := false
	for i := 0; i < 50; i++ {
		if resp, err := http.Get(base + "/healthz"); err == nil {
			resp.Body.Close()
			up = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !up {
		cancel()
		t.Fatalf("server did not come up: %v", <-done)
	}

	if _, err := os.Stat(pidFilePath(cfg)); err != nil {
		t.Errorf("PID file missing while serving: %v", err)
	}

	var status bytes.Buffer
	if err := a.showStatus(ctx, &status); err != nil {
		t.Fatalf("showStatus: %v", err)
	}
	if !strings.Contains(status.String(), "running on port") {
		t.Errorf("status = %q", status.String())
	}
	if !strings.Contains(status.String(), "Preferences:") {
		t.Errorf("status lacks preference count: %q", status.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServer: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	if _, err := os.Stat(pidFilePath(cfg)); !os.IsNotExist(err) {
		t.Errorf("PID file not removed: %v", err)
	}
}

func TestServeRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	if r := runCLI(t, cfg, "", "serve", "--mcp=false"); r.err == nil {
		t.Error("expected error without a signing secret")
	}
}

func TestStatusStopped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = freePort(t)

	r := mustRun(t, cfg, "status")
	if !strings.Contains(r.stdout, "stopped") {
		t.Errorf("status = %q, want stopped", r.stdout)
	}
	if !strings.Contains(r.stdout, "Schema: v") {
		t.Errorf("status lacks schema version: %q", r.stdout)
	}
}

func TestStopWithoutServer(t *testing.T) {
	if r := runCLI(t, testConfig(t), "", "stop"); r.err == nil {
		t.Error("expected error when no PID file exists")
	}
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("client sent no bearer token")
		}
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := newAPIClient(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	c.baseURL = srv.URL

	resp, err := c.get(ctx, "/prefs")
	if err != nil {
		t.Fatal(err)
	}
	var v any
	if err := decodeJSON(resp, &v); err == nil || !strings.Contains(err.Error(), "418") {
		t.Errorf("decodeJSON err = %v, want 418", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, _ := newAPIClient(testConfig(t))
	c.baseURL = srv.URL
	if _, err := c.get(ctx, "/healthz"); err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("err = %v, want not reachable", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
