package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/services"
)

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTrimArgs(t *testing.T) {
	args := strings.Join(TrimArgs("in.mp4", "out.mp4", DefaultTrimOptions()), " ")
	want := "-y -i in.mp4 -t 00:05:20 -vf scale='min(1280,iw)':-2 -c:v libx264 -preset veryfast -crf 23 -c:a aac -b:a 128k -movflags +faststart out.mp4"
	if args != want {
		t.Errorf("TrimArgs() =\n%s\nwant\n%s", args, want)
	}

	copyArgs := strings.Join(TrimArgs("in.mp4", "out.mp4", TrimOptions{Duration: "00:01:00"}), " ")
	if copyArgs != "-y -i in.mp4 -t 00:01:00 -c copy out.mp4" {
		t.Errorf("stream copy args = %s", copyArgs)
	}

	custom := strings.Join(TrimArgs("a", "b", TrimOptions{Reencode: true, MaxWidth: 640}), " ")
	if !strings.Contains(custom, "min(640,iw)") || !strings.Contains(custom, "-crf 23") {
		t.Errorf("defaults not applied: %s", custom)
	}
}

// writeTool creates an executable shell script standing in for a tool.
func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	return p
}

func TestTrimFailureKeepsStderrTail(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeTool(t, dir, "ffmpeg", `echo "Invalid data found when processing input" >&2; exit 3`)
	a := NewAcquirer(Config{FFmpegPath: ffmpeg, Logger: logging.NewNop()})

	res, err := a.Trim(context.Background(), "in.mp4", filepath.Join(dir, "out", "trim.mp4"), DefaultTrimOptions())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if res.ExitCode != 3 || !strings.Contains(res.StderrTail, "Invalid data") {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("error should carry stderr tail: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out")); statErr != nil {
		t.Fatalf("output dir should be created: %v", statErr)
	}
}

func TestDownloadRunsTool(t *testing.T) {
	dir := t.TempDir()
	ytdlp := writeTool(t, dir, "yt-dlp", `while [ $# -gt 0 ]; do if [ "$1" = "-o" ]; then shift; echo video > "$1"; fi; shift; done`)
	a := NewAcquirer(Config{YTDLPPath: ytdlp, Logger: logging.NewNop(), DownloadTimeout: 10 * time.Second})

	target := filepath.Join(dir, "dl", "video.mp4")
	res, err := a.Download(context.Background(), "https://www.youtube.com/watch?v=x", target)
	if err != nil {
		t.Fatalf("Download() error = %v (%+v)", err, res)
	}
	if data, err := os.ReadFile(target); err != nil || strings.TrimSpace(string(data)) != "video" {
		t.Fatalf("target not written: %q %v", data, err)
	}

	if _, err := a.Download(context.Background(), " ", target); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDoctorReportsMissingTools(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeTool(t, dir, "ffmpeg", "exit 0")
	a := NewAcquirer(Config{FFmpegPath: ffmpeg, YTDLPPath: filepath.Join(dir, "nope"), Logger: logging.NewNop()})

	caps, err := a.Doctor(context.Background())
	if err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	if caps.AllOK() {
		t.Fatal("expected missing yt-dlp to fail the probe")
	}
	if !caps.Tools[0].Available || caps.Tools[1].Available || caps.Tools[1].Error == "" {
		t.Fatalf("unexpected tools %+v", caps.Tools)
	}
}

type countingProber struct {
	calls int
	err   error
}

func (p *countingProber) Doctor(context.Context) (*Capabilities, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Capabilities{ProbedAt: time.Now()}, nil
}

func TestCachedDoctor(t *testing.T) {
	prober := &countingProber{}
	d := NewCachedDoctor(prober, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if prober.calls != 1 {
		t.Fatalf("expected one probe, got %d", prober.calls)
	}

	prober.err = errors.New("probe failed")
	if caps, err := d.Refresh(ctx); err != nil || caps == nil {
		t.Fatalf("stale cache should be returned, got %v", err)
	}
}
