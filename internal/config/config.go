// Package config loads storymill settings. Values come from built-in
// defaults, then an optional TOML file, then STORYMILL_* environment
// variables, and are normalized and validated before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	// Environment variable prefix; a field tagged env:"PORT" reads STORYMILL_PORT.
	EnvPrefix = "STORYMILL_"

	EnvPort     = EnvPrefix + "PORT"
	EnvLogLevel = EnvPrefix + "LOG_LEVEL"
	EnvDataDir  = EnvPrefix + "DATA_DIR"
	EnvTempRoot = EnvPrefix + "TEMP_ROOT"
	EnvOutput   = EnvPrefix + "OUTPUT"

	// Database filename
	DBFilename = "storymill.db"

	// Legacy permanent video store, relative to the data dir
	LegacyVideoDir = "videos"

	defaultConfigPath  = "~/.config/storymill/config.toml"
	projectConfigFile  = "storymill.toml"
	defaultDataDirName = ".storymill"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	BindHost() string
	Addr() string
	PublicBaseURL() string
	AuthEnabled() bool
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	TempRoot() string
	OutputMode() string
	FFmpegBinary() string
	EncodeTimeout() time.Duration
	Width() int
	Height() int
	FPS() int
	CRF() int
	Preset() string
	PadColor() string
	AmbientVolume() float64
	MinSceneSeconds() float64
	FetchTimeout() time.Duration
	FetchMaxAttempts() int
	FetchConcurrency() int
	UserAgent() string
	Retention() time.Duration
	SweepInterval() time.Duration
}

// Server holds HTTP listener settings.
type Server struct {
	Host          string `toml:"host" env:"HOST"`
	Port          int    `toml:"port" env:"PORT"`
	PublicBaseURL string `toml:"public_base_url" env:"PUBLIC_BASE_URL"`
	AuthEnabled   bool   `toml:"auth_enabled" env:"AUTH_ENABLED"`
}

// Paths holds on-disk locations.
type Paths struct {
	DataDir  string `toml:"data_dir" env:"DATA_DIR"`
	TempRoot string `toml:"temp_root" env:"TEMP_ROOT"`
}

// Logging holds log output settings.
type Logging struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"`
}

// Render holds output strategy and encode settings.
type Render struct {
	Output               string  `toml:"output" env:"OUTPUT"`
	FFmpegBinary         string  `toml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	EncodeTimeoutSeconds int     `toml:"encode_timeout_seconds" env:"ENCODE_TIMEOUT_SECONDS"`
	Width                int     `toml:"width" env:"WIDTH"`
	Height               int     `toml:"height" env:"HEIGHT"`
	FPS                  int     `toml:"fps" env:"FPS"`
	CRF                  int     `toml:"crf" env:"CRF"`
	Preset               string  `toml:"preset" env:"PRESET"`
	PadColor             string  `toml:"pad_color" env:"PAD_COLOR"`
	AmbientVolume        float64 `toml:"ambient_volume" env:"AMBIENT_VOLUME"`
	MinSceneSeconds      float64 `toml:"min_scene_seconds" env:"MIN_SCENE_SECONDS"`
}

// Fetch holds asset download settings.
type Fetch struct {
	TimeoutSeconds int    `toml:"timeout_seconds" env:"FETCH_TIMEOUT_SECONDS"`
	MaxAttempts    int    `toml:"max_attempts" env:"FETCH_MAX_ATTEMPTS"`
	Concurrency    int    `toml:"concurrency" env:"FETCH_CONCURRENCY"`
	UserAgent      string `toml:"user_agent" env:"FETCH_USER_AGENT"`
}

// Workspace holds temp directory lifecycle settings.
type Workspace struct {
	RetentionMinutes     int `toml:"retention_minutes" env:"RETENTION_MINUTES"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes" env:"SWEEP_INTERVAL_MINUTES"`
}

// FileConfig is the concrete configuration, one TOML table per section.
type FileConfig struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	Render    Render    `toml:"render"`
	Fetch     Fetch     `toml:"fetch"`
	Workspace Workspace `toml:"workspace"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load builds the configuration. path may be empty, in which case the
// per-user file and then ./storymill.toml are tried; a missing file is not an
// error. It returns the config, the file path considered, and whether that
// file existed.
func Load(path string) (*FileConfig, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data dir, the legacy video store and the temp root.
func (c *FileConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, filepath.Join(c.Paths.DataDir, LegacyVideoDir), c.Paths.TempRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *FileConfig) Port() int             { return c.Server.Port }
func (c *FileConfig) BindHost() string      { return c.Server.Host }
func (c *FileConfig) PublicBaseURL() string { return c.Server.PublicBaseURL }
func (c *FileConfig) AuthEnabled() bool     { return c.Server.AuthEnabled }

// Addr returns the listen address host:port.
func (c *FileConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *FileConfig) LogLevel() string  { return c.Logging.Level }
func (c *FileConfig) LogFormat() string { return c.Logging.Format }

// DataDir returns the data directory path
func (c *FileConfig) DataDir() string { return c.Paths.DataDir }

// DBPath returns the full path to the SQLite database file
func (c *FileConfig) DBPath() string {
	return filepath.Join(c.Paths.DataDir, DBFilename)
}

func (c *FileConfig) TempRoot() string { return c.Paths.TempRoot }

func (c *FileConfig) OutputMode() string   { return c.Render.Output }
func (c *FileConfig) FFmpegBinary() string { return c.Render.FFmpegBinary }

func (c *FileConfig) EncodeTimeout() time.Duration {
	return time.Duration(c.Render.EncodeTimeoutSeconds) * time.Second
}

func (c *FileConfig) Width() int               { return c.Render.Width }
func (c *FileConfig) Height() int              { return c.Render.Height }
func (c *FileConfig) FPS() int                 { return c.Render.FPS }
func (c *FileConfig) CRF() int                 { return c.Render.CRF }
func (c *FileConfig) Preset() string           { return c.Render.Preset }
func (c *FileConfig) PadColor() string         { return c.Render.PadColor }
func (c *FileConfig) AmbientVolume() float64   { return c.Render.AmbientVolume }
func (c *FileConfig) MinSceneSeconds() float64 { return c.Render.MinSceneSeconds }

func (c *FileConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c *FileConfig) FetchMaxAttempts() int { return c.Fetch.MaxAttempts }
func (c *FileConfig) FetchConcurrency() int { return c.Fetch.Concurrency }
func (c *FileConfig) UserAgent() string     { return c.Fetch.UserAgent }

func (c *FileConfig) Retention() time.Duration {
	return time.Duration(c.Workspace.RetentionMinutes) * time.Minute
}

func (c *FileConfig) SweepInterval() time.Duration {
	return time.Duration(c.Workspace.SweepIntervalMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
