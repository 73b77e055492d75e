package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-notes/internal/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NOTES_DATA_DIR", filepath.Join(dir, "data"))
	path := filepath.Join(dir, "notes.toml")
	body := "[paths]\nwork_dir = \"" + filepath.Join(dir, "work") + "\"\n\n[storage]\nbackend = \"dir\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Status"}, [][]string{{"job-1", "queued"}, {"job-2"}}, nil)
	for _, want := range []string{"ID", "Status", "job-1", "queued", "job-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a longer message", 8, "a lon..."},
		{"abcdef", 3, "abc"},
		{"héllo wörld", 7, "héll..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestResolveJobID(t *testing.T) {
	cfg := config.Default()

	if _, err := resolveJobID("", &cfg, false); err == nil {
		t.Fatal("expected error without a job id")
	}
	id, err := resolveJobID("", &cfg, true)
	if err != nil || id == "" {
		t.Fatalf("generated id = %q, %v", id, err)
	}
	cfg.Job.ID = "from-config"
	if id, _ := resolveJobID("", &cfg, false); id != "from-config" {
		t.Errorf("id = %q, want config value", id)
	}
	if id, _ := resolveJobID(" flag-id ", &cfg, false); id != "flag-id" {
		t.Errorf("id = %q, want flag value", id)
	}
	if _, err := resolveJobID("../escape", &cfg, false); err == nil {
		t.Error("expected invalid id to be rejected")
	}
}

func TestRunConfigCarriesSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Acquire.Trim = false
	cfg.Align.IncludeTail = true
	cfg.Render.Format = "markdown"
	cfg.Storage.SASTTLHours = 2

	rc := runConfig(&cfg, "job-9", "https://example.com/v.mp4")
	if !rc.Acquire.SkipTrim {
		t.Error("trim disabled in config should skip trimming")
	}
	if !rc.Align.IncludeTail {
		t.Error("include_tail not carried")
	}
	if rc.Render.Format != "markdown" {
		t.Errorf("format = %q", rc.Render.Format)
	}
	if rc.Index.SASTTL.Hours() != 2 {
		t.Errorf("sas ttl = %v", rc.Index.SASTTL)
	}
	if rc.Acquire.JobID != "job-9" || rc.Render.JobID != "job-9" {
		t.Error("job id not propagated to every stage")
	}
	if rc.Acquire.VideoURL != "https://example.com/v.mp4" {
		t.Errorf("video url = %q", rc.Acquire.VideoURL)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "conf", "notes.toml")

	out, err := execute(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("output %q does not name %s", out, target)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, err := execute(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeTestConfig(t)
	out, err := execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestJobsSubmitAndList(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "No jobs") {
		t.Errorf("expected empty ledger, got %q", out)
	}

	out, err = execute(t, "--config", path, "jobs", "submit", "https://example.com/talk.mp4", "--job-id", "talk-1")
	if err != nil {
		t.Fatalf("jobs submit: %v", err)
	}
	if !strings.Contains(out, "talk-1") {
		t.Errorf("submit output %q", out)
	}

	out, err = execute(t, "--config", path, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "talk-1") || !strings.Contains(out, "pending") {
		t.Errorf("listing missing job:\n%s", out)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "--config", "/nonexistent/notes.toml", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, config.Version) {
		t.Errorf("version output %q", out)
	}
}
