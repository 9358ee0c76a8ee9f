package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/internal/journal"
	"github.com/me/fetchq/internal/origin"
)

// startTestOrigin starts the demo origin on a test listener and returns its
// base URL.
func startTestOrigin(t *testing.T) string {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := origin.New(config.DefaultOriginConfig(), srvLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestFetchCommand(t *testing.T) {
	url := startTestOrigin(t)
	journalPath := filepath.Join(t.TempDir(), "fetchq.db")

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet",
			"fetch", url+"/text", url+"/json",
			"--journal", journalPath,
		)
	})

	if err != nil {
		t.Fatalf("fetch error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "ok   GET") {
		t.Errorf("expected 'ok   GET' lines in output, got: %s", output)
	}
	if !strings.Contains(output, "2 requests: 2 ok, 0 failed") {
		t.Errorf("expected summary line in output, got: %s", output)
	}
	if !strings.Contains(output, "journaled as run_") {
		t.Errorf("expected journal run line in output, got: %s", output)
	}

	// The journal should hold the settled requests and a finished run.
	jnlLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	jnl, err := journal.Open(journalPath, jnlLogger)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()

	run, err := jnl.LastRun(context.Background())
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if run == nil {
		t.Fatal("expected a journaled run")
	}
	if run.Command != "fetch" {
		t.Errorf("run command = %q, want %q", run.Command, "fetch")
	}
	if run.FinishedAt == nil {
		t.Error("expected run to be finished")
	}

	entries, err := jnl.List(context.Background(), journal.Filter{RunID: run.ID})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Status != "DONE" {
			t.Errorf("entry %s status = %q, want DONE", e.RequestID, e.Status)
		}
	}
}

func TestFetchCommand_Manifest(t *testing.T) {
	url := startTestOrigin(t)

	manifest := `defaults:
  priority: high
  responseType: text
requests:
  - name: hello
    url: ` + url + `/text
  - name: payload
    url: ` + url + `/json
    responseType: json
`
	manifestPath := filepath.Join(t.TempDir(), "requests.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet", "fetch", "--manifest", manifestPath)
	})

	if err != nil {
		t.Fatalf("fetch error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "2 requests: 2 ok, 0 failed") {
		t.Errorf("expected summary line in output, got: %s", output)
	}
}

func TestFetchCommand_FailedRequest(t *testing.T) {
	url := startTestOrigin(t)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet",
			"fetch", url+"/status/503",
			"--retries", "2",
		)
	})

	if err == nil {
		t.Fatal("expected an error for a failing request")
	}
	if !strings.Contains(err.Error(), "1 of 1 requests failed") {
		t.Errorf("error = %q, want mention of failed requests", err)
	}
	if !strings.Contains(output, "FAIL GET") {
		t.Errorf("expected 'FAIL GET' line in output, got: %s", output)
	}
}

func TestFetchCommand_NoArgs(t *testing.T) {
	_, err := runCLI(t, "--quiet", "fetch")
	if err == nil || !strings.Contains(err.Error(), "nothing to fetch") {
		t.Errorf("error = %v, want 'nothing to fetch'", err)
	}
}

func TestFetchCommand_ManifestAndURLs(t *testing.T) {
	_, err := runCLI(t, "--quiet", "fetch", "http://localhost/x", "--manifest", "reqs.yaml")
	if err == nil || !strings.Contains(err.Error(), "cannot combine") {
		t.Errorf("error = %v, want 'cannot combine'", err)
	}
}

func TestFetchCommand_OutDir(t *testing.T) {
	url := startTestOrigin(t)
	outDir := filepath.Join(t.TempDir(), "responses")

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet",
			"fetch", url+"/json",
			"--type", "json",
			"--out", outDir,
		)
	})
	if err != nil {
		t.Fatalf("fetch error: %v\noutput: %s", err, output)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "001-json.json"))
	if err != nil {
		t.Fatalf("read saved response: %v", err)
	}
	if !strings.Contains(string(data), `"service"`) {
		t.Errorf("saved response = %s, want origin JSON payload", data)
	}
}

func TestBenchCommand(t *testing.T) {
	url := startTestOrigin(t)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet",
			"bench", "--origin", url,
			"--requests", "8",
			"--concurrency", "3",
		)
	})

	if err != nil {
		t.Fatalf("bench error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Bench: 8 requests against "+url) {
		t.Errorf("expected bench header in output, got: %s", output)
	}
	if !strings.Contains(output, "Preemptions:") {
		t.Errorf("expected stats block in output, got: %s", output)
	}
}

func TestReportCommand(t *testing.T) {
	url := startTestOrigin(t)
	journalPath := filepath.Join(t.TempDir(), "fetchq.db")

	var err error
	_ = captureStdout(t, func() {
		_, err = runCLI(t, "--quiet",
			"fetch", url+"/text", url+"/bytes?n=64",
			"--journal", journalPath,
		)
	})
	if err != nil {
		t.Fatalf("seed fetch error: %v", err)
	}

	output := captureStdout(t, func() {
		_, err = runCLI(t, "--quiet", "report", "--journal", journalPath)
	})
	if err != nil {
		t.Fatalf("report error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "REQUEST") {
		t.Errorf("expected entries table in output, got: %s", output)
	}
	if !strings.Contains(output, "DONE") {
		t.Errorf("expected DONE entries in output, got: %s", output)
	}
	if !strings.Contains(output, "Run run_") {
		t.Errorf("expected run summary in output, got: %s", output)
	}
	if !strings.Contains(output, "2 total") {
		t.Errorf("expected request count in summary, got: %s", output)
	}

	output = captureStdout(t, func() {
		_, err = runCLI(t, "--quiet", "report", "--journal", journalPath, "--runs")
	})
	if err != nil {
		t.Fatalf("report --runs error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "fetch") {
		t.Errorf("expected run row for the fetch command, got: %s", output)
	}

	output = captureStdout(t, func() {
		_, err = runCLI(t, "--quiet", "report", "--journal", journalPath, "--failed")
	})
	if err != nil {
		t.Fatalf("report --failed error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "No requests found.") {
		t.Errorf("expected empty failed listing, got: %s", output)
	}
}

func TestReportCommand_NoJournal(t *testing.T) {
	_, err := runCLI(t, "--quiet", "report")
	if err == nil || !strings.Contains(err.Error(), "no journal configured") {
		t.Errorf("error = %v, want 'no journal configured'", err)
	}
}

func TestServeCommand_BadAddr(t *testing.T) {
	_, err := runCLI(t, "--quiet", "serve", "--addr", "127.0.0.1:999999")
	if err == nil {
		t.Fatal("expected an error for an invalid listen address")
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"X-Trace=abc", "accept=application/json"})
	if err != nil {
		t.Fatalf("parseHeaders: %v", err)
	}
	if got := h.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q, want %q", got, "abc")
	}
	if got := h.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q, want %q", got, "application/json")
	}

	if _, err := parseHeaders([]string{"no-separator"}); err == nil {
		t.Error("expected an error for a header without key=value")
	}
	if _, err := parseHeaders([]string{"=value"}); err == nil {
		t.Error("expected an error for a header with an empty key")
	}

	h, err = parseHeaders(nil)
	if err != nil || h != nil {
		t.Errorf("parseHeaders(nil) = %v, %v, want nil, nil", h, err)
	}
}

func TestResolveBody(t *testing.T) {
	body, err := resolveBody("ping")
	if err != nil {
		t.Fatalf("resolveBody: %v", err)
	}
	if body != "ping" {
		t.Errorf("body = %v, want %q", body, "ping")
	}

	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	body, err = resolveBody("@" + path)
	if err != nil {
		t.Fatalf("resolveBody from file: %v", err)
	}
	if got, ok := body.([]byte); !ok || string(got) != `{"a":1}` {
		t.Errorf("body = %v, want file contents", body)
	}

	if _, err := resolveBody("@" + filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing body file")
	}

	body, err = resolveBody("")
	if err != nil || body != nil {
		t.Errorf("resolveBody(\"\") = %v, %v, want nil, nil", body, err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name        string
		seq         int
		contentType string
		want        string
	}{
		{"https://api.test/things/1", 0, "application/json", "001-things_1.json"},
		{"https://api.test", 1, "text/plain; charset=utf-8", "002-api.test.txt"},
		{"hello report", 2, "application/octet-stream", "003-hello_report.bin"},
		{"https://api.test/pic", 3, "image/png", "004-pic.png"},
	}
	for _, tt := range tests {
		if got := outputName(tt.name, tt.seq, tt.contentType); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGatherSpecs(t *testing.T) {
	specs, err := gatherSpecs([]string{"https://api.test/a", "https://api.test/b"},
		"", "post", "high", "json", []string{"X-K=v"}, "tok", "ping", true)
	if err != nil {
		t.Fatalf("gatherSpecs: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("specs = %d, want 2", len(specs))
	}
	spec := specs[0]
	if spec.Method.String() != "POST" {
		t.Errorf("method = %q, want POST", spec.Method)
	}
	if spec.Options.Priority.String() != "HIGH" {
		t.Errorf("priority = %q, want HIGH", spec.Options.Priority)
	}
	if spec.Options.Body != "ping" {
		t.Errorf("body = %v, want %q", spec.Options.Body, "ping")
	}
	if !spec.Options.WithCredentials {
		t.Error("expected WithCredentials to be set")
	}
	if got := spec.Options.Headers.Get("X-K"); got != "v" {
		t.Errorf("header X-K = %q, want %q", got, "v")
	}

	if _, err := gatherSpecs([]string{"not a url"}, "", "GET", "", "", nil, "", "", false); err == nil {
		t.Error("expected an error for an invalid url")
	}
	if _, err := gatherSpecs([]string{"https://api.test"}, "", "GET", "lowest", "", nil, "", "", false); err == nil {
		t.Error("expected an error for an unknown priority")
	}
}
