package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-notes/internal/logging"
	"github.com/heimdex/heimdex-notes/internal/services"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	ToolFFmpeg = "ffmpeg"
	ToolYTDLP  = "yt-dlp"
)

// Config holds tool locations and timeouts.
type Config struct {
	FFmpegPath      string        // empty = look up on PATH
	YTDLPPath       string        // empty = look up on PATH
	DownloadTimeout time.Duration // timeout for yt-dlp
	TrimTimeout     time.Duration // timeout for ffmpeg
	Logger          *slog.Logger
	DebugPaths      bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		DownloadTimeout: 30 * time.Minute,
		TrimTimeout:     30 * time.Minute,
		Logger:          logger,
	}
}

// Acquirer downloads and trims source videos.
type Acquirer struct {
	cfg Config
}

func NewAcquirer(cfg Config) *Acquirer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = logging.WithComponent(cfg.Logger, "media")
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Minute
	}
	if cfg.TrimTimeout <= 0 {
		cfg.TrimTimeout = 30 * time.Minute
	}
	return &Acquirer{cfg: cfg}
}

// Download fetches videoURL to target with yt-dlp, preferring an mp4 stream.
func (a *Acquirer) Download(ctx context.Context, videoURL, target string) (RunResult, error) {
	if strings.TrimSpace(videoURL) == "" {
		return RunResult{}, services.Validation("acquire", "missing video url")
	}
	bin, err := resolveTool(a.cfg.YTDLPPath, ToolYTDLP)
	if err != nil {
		return RunResult{}, services.Wrap(services.ErrExternalTool, "acquire", "download", "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.DownloadTimeout)
	defer cancel()

	result := a.exec(ctx, bin, target, "-f", "best[ext=mp4]/best", "-o", target, videoURL)
	return result, resultError(result, "acquire", "download")
}

// Trim cuts the first opts.Duration of in into out, re-encoding unless
// opts.Reencode is false.
func (a *Acquirer) Trim(ctx context.Context, in, out string, opts TrimOptions) (RunResult, error) {
	bin, err := resolveTool(a.cfg.FFmpegPath, ToolFFmpeg)
	if err != nil {
		return RunResult{}, services.Wrap(services.ErrExternalTool, "acquire", "trim", "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TrimTimeout)
	defer cancel()

	result := a.exec(ctx, bin, out, TrimArgs(in, out, opts)...)
	return result, resultError(result, "acquire", "trim")
}

// TrimArgs builds the ffmpeg argument list for Trim.
func TrimArgs(in, out string, opts TrimOptions) []string {
	def := DefaultTrimOptions()
	if opts.Duration == "" {
		opts.Duration = def.Duration
	}
	args := []string{"-y", "-i", in, "-t", opts.Duration}
	if !opts.Reencode {
		return append(args, "-c", "copy", out)
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.CRF <= 0 {
		opts.CRF = def.CRF
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = def.AudioBitrate
	}
	if opts.Preset == "" {
		opts.Preset = def.Preset
	}
	return append(args,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", opts.MaxWidth),
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", strconv.Itoa(opts.CRF),
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-movflags", "+faststart",
		out,
	)
}

func resultError(r RunResult, stage, op string) error {
	if r.IsSuccess() {
		return nil
	}
	return services.Wrap(services.ErrExternalTool, stage, op,
		fmt.Sprintf("%s exited %d", r.Tool, r.ExitCode), errors.New(strings.TrimSpace(r.StderrTail)))
}

// exec is the core subprocess execution helper.
func (a *Acquirer) exec(ctx context.Context, bin, outPath string, args ...string) RunResult {
	start := time.Now()
	tool := filepath.Base(bin)

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			a.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{Tool: tool, ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	a.cfg.Logger.Info("executing tool", "tool", tool, "args", len(args), "output", a.safePath(outPath))

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		a.cfg.Logger.Warn("tool command failed",
			"tool", tool,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		a.cfg.Logger.Info("tool command succeeded",
			"tool", tool,
			"duration_ms", elapsed.Milliseconds(),
			"output", a.safePath(outPath),
		)
	}

	return RunResult{
		Tool:       tool,
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (a *Acquirer) safePath(path string) string {
	if a.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

// resolveTool finds a usable binary, preferring the configured path.
func resolveTool(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
