package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/offliner/internal/config"
	"github.com/masahif/offliner/internal/crawler"
	"github.com/masahif/offliner/internal/storage"
)

var _ crawler.ProgressReporter = (*progressBar)(nil)

// execute runs a fresh root command in an empty working directory so no
// stray offliner.yml or .env is picked up.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout, stderr bytes.Buffer
	c := newRootCmd()
	c.SetArgs(args)
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	err := c.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Home</title><link rel="stylesheet" href="/site.css"></head>
<body><img src="/logo.png"><a href="/about">About</a><a href="https://elsewhere.example/">Out</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><img src="/logo.png"><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("PNGDATA"))
	})
	mux.HandleFunc("/site.css", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("body{}"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func hostDir(srvURL string) string {
	return strings.ReplaceAll(strings.TrimPrefix(srvURL, "http://"), ":", "_")
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2023-12-01T10:00:00Z")

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}

	if got := generateUserAgent(); got != "Offliner/1.2.3" {
		t.Errorf("Expected user agent Offliner/1.2.3, got %s", got)
	}
}

func TestRootCmd(t *testing.T) {
	c := newRootCmd()
	if c.Use != "offliner [URL]" {
		t.Errorf("Unexpected use: %s", c.Use)
	}
	if c.RunE == nil {
		t.Error("RunE should be set")
	}

	expectedFlags := []string{
		"target", "output-dir", "depth", "just-this", "use-browser",
		"timeout", "nav-timeout", "chrome-path", "user-agent", "header", "resource-rule",
		"yes", "resume", "manifest", "log-level", "log-file", "show-config",
	}
	for _, name := range expectedFlags {
		if c.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag %s to be defined", name)
		}
	}
	if c.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected persistent flag 'config' to be defined")
	}

	shorthands := map[string]string{"t": "target", "o": "output-dir", "d": "depth", "b": "use-browser", "y": "yes", "u": "user-agent", "H": "header"}
	for short, name := range shorthands {
		f := c.Flags().ShorthandLookup(short)
		if f == nil || f.Name != name {
			t.Errorf("Expected -%s to map to --%s", short, name)
		}
	}
}

func TestExecuteHelp(t *testing.T) {
	stdout, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help returned error: %v", err)
	}
	if !strings.Contains(stdout, "offliner [URL]") {
		t.Errorf("help output missing usage line:\n%s", stdout)
	}
}

func TestShowConfigPrecedence(t *testing.T) {
	t.Setenv("OFFLINER_DEPTH", "3")
	t.Setenv("OFFLINER_LOG_LEVEL", "debug")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yml")
	content := `target: https://from-file.example
output_dir: /tmp/from-file
depth: 7
user_agent: FileAgent/1.0
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	stdout, stderr, err := execute(t, "--config", cfgPath, "--show-config", "https://from-arg.example/docs")
	if err != nil {
		t.Fatalf("show-config returned error: %v", err)
	}

	checks := []string{
		"target: https://from-arg.example/docs", // positional beats file
		"output_dir: /tmp/from-file",
		"depth: 3", // env beats file
		"user_agent: FileAgent/1.0",
		"level: debug",
		"request_timeout: 30s",
		"OFFLINER_",
	}
	for _, want := range checks {
		if !strings.Contains(stdout, want) {
			t.Errorf("show-config output missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "Using config file") {
		t.Errorf("expected config file notice on stderr, got %q", stderr)
	}
}

func TestFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("OFFLINER_DEPTH", "3")

	stdout, _, err := execute(t, "--show-config", "-d", "5", "-H", "X-List: a, b", "https://example.com")
	if err != nil {
		t.Fatalf("show-config returned error: %v", err)
	}
	if !strings.Contains(stdout, "depth: 5") {
		t.Errorf("expected flag depth to win:\n%s", stdout)
	}
	if !strings.Contains(stdout, "X-List: a, b") {
		t.Errorf("expected header to survive intact:\n%s", stdout)
	}
	if !strings.Contains(stdout, "user_agent: Offliner/") {
		t.Errorf("expected generated user agent:\n%s", stdout)
	}
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("OFFLINER_OUTPUT_DIR") })

	if err := os.WriteFile(".env", []byte("OFFLINER_OUTPUT_DIR=/tmp/from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	v := newRootCmd()
	var stdout bytes.Buffer
	v.SetArgs([]string{"--show-config", "https://example.com"})
	v.SetOut(&stdout)
	v.SetErr(&bytes.Buffer{})
	if err := v.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("show-config returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "output_dir: /tmp/from-dotenv") {
		t.Errorf("expected output dir from .env:\n%s", stdout.String())
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "--show-config")
	if err == nil {
		t.Error("Expected error for explicit config file that does not exist")
	}
}

func TestRunMirrorValidation(t *testing.T) {
	_, _, err := execute(t, "--yes", "https://example.com")
	if !errors.Is(err, config.ErrEmptyOutputDir) {
		t.Errorf("Expected ErrEmptyOutputDir, got %v", err)
	}

	_, _, err = execute(t, "--yes", "-o", t.TempDir())
	if !errors.Is(err, config.ErrNoTarget) {
		t.Errorf("Expected ErrNoTarget, got %v", err)
	}
}

func TestRunMirrorEndToEnd(t *testing.T) {
	srv := newSiteServer(t)
	out := t.TempDir()
	manifest := filepath.Join(t.TempDir(), "db", "manifest.db")

	stdout, _, err := execute(t, srv.URL+"/", "-o", out, "--yes", "--log-level", "error", "--manifest", manifest)
	if err != nil {
		t.Fatalf("mirror failed: %v", err)
	}

	target := filepath.Join(out, hostDir(srv.URL))
	for _, rel := range []string{"index.html", "about.html"} {
		if _, err := os.Stat(filepath.Join(target, rel)); err != nil {
			t.Errorf("expected page %s: %v", rel, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(target, "static"))
	if err != nil {
		t.Fatalf("static dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 static files (logo shared between pages), got %d", len(entries))
	}

	index, err := os.ReadFile(filepath.Join(target, "index.html"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !strings.Contains(string(index), `href="about.html"`) {
		t.Errorf("expected rewritten link to about.html:\n%s", index)
	}

	if !strings.Contains(stdout, "Done!") || !strings.Contains(stdout, "Downloaded 2 pages and 2 static files") {
		t.Errorf("unexpected summary:\n%s", stdout)
	}

	store, err := storage.NewSQLiteStorage(manifest)
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	defer func() { _ = store.Close() }()
	version, err := store.GetMeta(context.Background(), "schema_version")
	if err != nil || version == "" {
		t.Errorf("expected manifest schema version, got %q (%v)", version, err)
	}
}

func TestRunMirrorTargetExists(t *testing.T) {
	srv := newSiteServer(t)
	out := t.TempDir()
	if err := os.Mkdir(filepath.Join(out, hostDir(srv.URL)), 0o755); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, srv.URL, "-o", out, "--yes", "--log-level", "error")
	kind, ok := crawler.KindOf(err)
	if !ok || kind != crawler.KindTargetDirExists {
		t.Fatalf("Expected target-exists error, got %v", err)
	}

	_, _, err = execute(t, srv.URL, "-o", out, "--yes", "--resume", "--just-this", "--log-level", "error")
	if err != nil {
		t.Errorf("resume should succeed, got %v", err)
	}
}

func TestRunMirrorDeclined(t *testing.T) {
	orig := confirmRun
	t.Cleanup(func() { confirmRun = orig })
	asked := false
	confirmRun = func(*config.MirrorConfig) (bool, error) {
		asked = true
		return false, nil
	}

	srv := newSiteServer(t)
	out := t.TempDir()
	stdout, _, err := execute(t, srv.URL, "-o", out, "--log-level", "error")
	if err != nil {
		t.Fatalf("declining should not fail: %v", err)
	}
	if !asked {
		t.Error("expected confirmation prompt")
	}
	if !strings.Contains(stdout, "Aborted.") {
		t.Errorf("expected abort notice:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Join(out, hostDir(srv.URL))); !os.IsNotExist(err) {
		t.Error("target directory should not be created when declined")
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	ReportError(&buf, crawler.NewError(crawler.KindResourceSave, "https://example.com/a.png", errors.New("boom")))
	got := buf.String()
	if !strings.Contains(got, "ERROR 05:") || !strings.Contains(got, "https://example.com/a.png") || !strings.Contains(got, "boom") {
		t.Errorf("unexpected coded error output: %q", got)
	}

	buf.Reset()
	ReportError(&buf, fmt.Errorf("wrapped: %w", crawler.NewError(crawler.KindInvalidURL, "ftp://x", nil)))
	if !strings.Contains(buf.String(), "ERROR 02:") {
		t.Errorf("expected wrapped coded error to keep its code: %q", buf.String())
	}

	buf.Reset()
	ReportError(&buf, errors.New("plain failure"))
	if !strings.Contains(buf.String(), "Error: plain failure") {
		t.Errorf("unexpected plain error output: %q", buf.String())
	}

	buf.Reset()
	ReportError(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("nil error should print nothing, got %q", buf.String())
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressBar(&buf)
	p.Start(2)
	p.Advance("https://example.com/")
	p.Advance("https://example.com/" + strings.Repeat("x", 100))
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "2/2") {
		t.Errorf("expected final count in output: %q", out)
	}
	if p.percent() != 1 {
		t.Errorf("expected complete bar, got %v", p.percent())
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}

	if got := shorten(strings.Repeat("a", 60), 10); len(got) != 10 || !strings.HasPrefix(got, "...") {
		t.Errorf("shorten() = %q", got)
	}

	empty := newProgressBar(&bytes.Buffer{})
	empty.Start(0)
	if empty.percent() != 1 {
		t.Error("empty run should show a full bar")
	}
}
