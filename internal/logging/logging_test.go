package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerToFormats(t *testing.T) {
	var buf bytes.Buffer
	WithJobID(NewLoggerTo(&buf, "info", FormatJSON), "job-1").Info("hello")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
	if rec["job_id"] != "job-1" {
		t.Errorf("job_id = %v", rec["job_id"])
	}

	buf.Reset()
	WithStage(NewLoggerTo(&buf, "info", FormatConsole), "align").Info("hello")
	if !strings.Contains(buf.String(), "stage=align") {
		t.Errorf("expected text output, got %q", buf.String())
	}

	// A buffer is not a terminal, so auto falls back to JSON.
	buf.Reset()
	NewLoggerTo(&buf, "info", FormatAuto).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON for non-terminal, got %q", buf.String())
	}

	buf.Reset()
	NewLoggerTo(&buf, "warn", FormatJSON).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("SanitizeToken = %q", got)
	}
}

func TestSanitizeURL(t *testing.T) {
	got := SanitizeURL("https://acct.blob.core.windows.net/raw/vid/1.mp4?sv=2024&sig=secret")
	if strings.Contains(got, "secret") || !strings.HasPrefix(got, "https://acct.blob.core.windows.net/raw/vid/1.mp4") {
		t.Errorf("SanitizeURL = %q", got)
	}
	if got := SanitizeURL("https://example.com/a"); got != "https://example.com/a" {
		t.Errorf("SanitizeURL without query = %q", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := SanitizePath(filepath.Join(home, "videos", "a.mp4"))
	if !strings.HasPrefix(got, "~") {
		t.Errorf("SanitizePath = %q", got)
	}
}
