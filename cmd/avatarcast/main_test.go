package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"avatarcast/internal/api"
	"avatarcast/internal/config"
	"avatarcast/internal/daemon"
	"avatarcast/internal/jobs"
	"avatarcast/internal/logging"
	"avatarcast/internal/testsupport"
	"avatarcast/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	provider   *testsupport.FakeProvider
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	provider := testsupport.NewFakeProvider(t)
	base := []testsupport.ConfigOption{
		testsupport.WithProviderURL(provider.URL()),
		testsupport.WithJournal(true),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	cfg.Paths.APIBind = closedAddress(t)

	env := &cliTestEnv{cfg: cfg, provider: provider, configPath: filepath.Join(t.TempDir(), "config.toml")}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// closedAddress returns a loopback address nothing listens on.
func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote sample configuration") {
		t.Fatalf("unexpected output %q", out.String())
	}

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("daemon-secret"))
	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "daemon-secret") || !strings.Contains(out, redacted) {
		t.Fatalf("secrets not redacted:\n%s", out)
	}
	if !strings.Contains(out, env.cfg.Paths.StateDir) {
		t.Fatalf("expected state dir in output:\n%s", out)
	}
}

func TestPresetsCommandListsPresetsAndDestinations(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, want := range []string{"youtube-landscape", "shorts-vertical", "Destinations:", "archive"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCatalogCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "catalog", "avatars", "--json")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var snap api.CatalogResponse
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode catalog output: %v\n%s", err, out)
	}
	if snap.Source != "live" || len(snap.Assets) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestCatalogCommandFiltersVoicesByLanguage(t *testing.T) {
	env := setupCLITestEnv(t)
	for lang, want := range map[string]int{"en": 1, "English": 1, "es": 0} {
		out, err := env.run(t, "catalog", "voice", "--language", lang, "--json")
		if err != nil {
			t.Fatalf("catalog --language %s: %v", lang, err)
		}
		var snap api.CatalogResponse
		if err := json.Unmarshal([]byte(out), &snap); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(snap.Assets) != want {
			t.Fatalf("--language %s: got %d voices, want %d", lang, len(snap.Assets), want)
		}
	}
}

func TestCatalogCommandWarnsOnFallback(t *testing.T) {
	env := setupCLITestEnv(t)
	env.provider.SetCatalogDown(true)
	out, err := env.run(t, "catalog", "voice")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "fallback") {
		t.Fatalf("expected fallback warning:\n%s", out)
	}
}

func TestGenerateAndExportInProcess(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "generate",
		"--script", "Hello from the test suite",
		"--avatar", "anna_public_20240108",
		"--voice", "voice-en-1",
		"--export", "youtube-landscape",
		"--to", "youtube,archive",
		"--json",
	)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	var result generateOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode generate output: %v\n%s", err, out)
	}
	if result.Job.State != string(jobs.StateSucceeded) || result.Job.OutputURL == "" {
		t.Fatalf("unexpected job %+v", result.Job)
	}
	if result.Export == nil || result.Export.Summary.Done != 2 {
		t.Fatalf("unexpected export %+v", result.Export)
	}

	listOut, err := env.run(t, "jobs", "list", "--json")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	var listed []api.Job
	if err := json.Unmarshal([]byte(listOut), &listed); err != nil {
		t.Fatalf("decode jobs: %v\n%s", err, listOut)
	}
	if len(listed) != 1 || listed[0].ID != result.Job.ID {
		t.Fatalf("expected journaled job, got %+v", listed)
	}

	// A second process can export the journaled job; existing objects are skipped.
	exportOut, err := env.run(t, "export", "--job", result.Job.ID, "--preset", "youtube-landscape", "--to", "youtube", "--json")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, exportOut)
	}
	var batch api.ExportResponse
	if err := json.Unmarshal([]byte(exportOut), &batch); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if batch.Summary.Done != 1 || batch.Summary.Skipped != 1 {
		t.Fatalf("expected skipped re-export, got %+v", batch.Summary)
	}

	historyOut, err := env.run(t, "export", "history")
	if err != nil {
		t.Fatalf("export history: %v", err)
	}
	if strings.Count(historyOut, "youtube-landscape") != 2 {
		t.Fatalf("expected two recorded batches:\n%s", historyOut)
	}
}

func TestGenerateReportsProviderFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "generate", "--script", "please FAIL", "--avatar", "anna_public_20240108", "--voice", "voice-en-1")
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("expected failure error, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Fatalf("expected failure in summary:\n%s", out)
	}
}

func TestExportRejectsUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "export", "--job", "missing", "--preset", "youtube-landscape", "--to", "youtube")
	if err == nil {
		t.Fatalf("expected failed export\n%s", out)
	}
	if !strings.Contains(out, `unknown job "missing"`) {
		t.Fatalf("expected task reason in output:\n%s", out)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
}

func TestLogsCommandShowsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "No daemon log") {
		t.Fatalf("unexpected logs output:\n%s", out)
	}

	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(env.cfg.DaemonLogPath(), []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, err = env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("logs output = %q", out)
	}
}

func TestCommandsUseRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("token"))
	stack, err := workflow.NewStack(context.Background(), env.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	env.cfg.Paths.APIBind = "127.0.0.1:0"
	d, err := daemon.New(env.cfg, stack, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.cfg.Paths.APIBind = d.Addr()
	env.writeConfig(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running (pid") {
		t.Fatalf("expected running daemon:\n%s", out)
	}

	out, err = env.run(t, "generate", "--script", "Hi", "--avatar", "anna_public_20240108", "--voice", "voice-en-1", "--detach", "--json")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	var result generateOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := stack.Orchestrator.Status(result.Job.ID); err != nil {
		t.Fatalf("job not owned by daemon: %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	for _, want := range []string{"Provider API", "State directory", "[OK]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	env.provider.SetCatalogDown(true)
	if _, err := env.run(t, "check"); err == nil {
		t.Fatal("expected check to fail with provider down")
	}
}

func TestReadScript(t *testing.T) {
	if _, err := readScript(strings.NewReader(""), "", ""); err == nil {
		t.Fatal("expected error without script")
	}
	if _, err := readScript(strings.NewReader(""), "a", "b"); err == nil {
		t.Fatal("expected error with both sources")
	}
	got, err := readScript(strings.NewReader("  from stdin \n"), "", "-")
	if err != nil || got != "from stdin" {
		t.Fatalf("stdin script = %q, %v", got, err)
	}
	path := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(path, []byte("from file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readScript(nil, "", path)
	if err != nil || got != "from file" {
		t.Fatalf("file script = %q, %v", got, err)
	}
}

func TestFormatTransition(t *testing.T) {
	cases := []struct {
		in   api.Transition
		want string
	}{
		{api.Transition{To: "processing", Progress: 40}, "  processing  40%"},
		{api.Transition{To: "succeeded", OutputURL: "https://x/v.mp4"}, "  succeeded https://x/v.mp4"},
		{api.Transition{To: "failed", Failure: &api.Failure{Kind: "timeout", Message: "too slow"}}, "  failed: too slow (timeout)"},
		{api.Transition{To: "queued"}, "  queued"},
	}
	for _, tc := range cases {
		if got := formatTransition(tc.in, false); got != tc.want {
			t.Fatalf("formatTransition(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilterJobs(t *testing.T) {
	list := []api.Job{{ID: "a", State: "failed"}, {ID: "b", State: "succeeded"}, {ID: "c", State: "processing"}}
	got := filterJobs(list, []string{"Succeeded", "processing"})
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("unexpected filter result %+v", got)
	}
	if len(filterJobs(list, nil)) != 3 {
		t.Fatal("expected no filtering without states")
	}
}
