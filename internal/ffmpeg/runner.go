package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Runner executes the encoder as a subprocess.
type Runner interface {
	// Run executes the encoder with args and waits for it to exit.
	// outPath, when set, must exist afterwards for the run to count as a success.
	Run(ctx context.Context, outPath string, args ...string) RunResult

	// Version runs `<binary> -version` and returns the reported version string.
	Version(ctx context.Context) (string, error)
}

// Config holds the runner's configuration.
type Config struct {
	Binary         string        // encoder binary; empty = "ffmpeg" on PATH
	EncodeTimeout  time.Duration // upper bound for a single encode
	VersionTimeout time.Duration // timeout for -version
	Logger         *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		Binary:         "ffmpeg",
		EncodeTimeout:  30 * time.Minute,
		VersionTimeout: 10 * time.Second,
		Logger:         logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner. The binary is resolved on each call so
// that installing the encoder after startup is picked up by the next check.
func NewRunner(cfg Config) *SubprocessRunner {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SubprocessRunner{cfg: cfg}
}

// Binary returns the configured encoder binary.
func (r *SubprocessRunner) Binary() string {
	return r.cfg.Binary
}

// Version runs the encoder binary with -version.
func (r *SubprocessRunner) Version(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(r.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("encoder %q not found: %w", r.cfg.Binary, err)
	}

	if r.cfg.VersionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.VersionTimeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("encoder -version: %w", err)
	}
	return parseVersion(out), nil
}

// Run is the core subprocess execution helper.
func (r *SubprocessRunner) Run(ctx context.Context, outPath string, args ...string) RunResult {
	start := time.Now()

	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	if r.cfg.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.EncodeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	r.cfg.Logger.Info("executing encoder",
		"binary", r.cfg.Binary,
		"args", len(args),
		"output", filepath.Base(outPath),
	)

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

	if exitCode == 0 && outPath != "" {
		if info, statErr := os.Stat(outPath); statErr != nil || info.Size() == 0 {
			exitCode = -1
			stderrTail += "\nencoder exited 0 but produced no output"
		}
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("encoder failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Info("encoder succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", filepath.Base(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return ""
	}
	line := strings.TrimSpace(sc.Text())
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			return fields[i+1]
		}
	}
	return line
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
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
