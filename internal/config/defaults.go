package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultOutput   = "auto"

	DefaultFFmpegBinary         = "ffmpeg"
	DefaultEncodeTimeoutSeconds = 1800
	DefaultWidth                = 1920
	DefaultHeight               = 1080
	DefaultFPS                  = 60
	DefaultCRF                  = 20
	DefaultPreset               = "medium"
	DefaultPadColor             = "black"
	DefaultAmbientVolume        = 0.3
	DefaultMinSceneSeconds      = 2

	DefaultFetchTimeoutSeconds = 30
	DefaultFetchMaxAttempts    = 3
	DefaultFetchConcurrency    = 1
	DefaultUserAgent           = "storymill-render"

	DefaultRetentionMinutes     = 60
	DefaultSweepIntervalMinutes = 30
)

// Default returns the configuration used when no file or env overrides apply.
func Default() FileConfig {
	return FileConfig{
		Server: Server{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Paths: Paths{
			DataDir:  defaultDataDir(),
			TempRoot: filepath.Join(os.TempDir(), "storymill"),
		},
		Logging: Logging{
			Level: DefaultLogLevel,
		},
		Render: Render{
			Output:               DefaultOutput,
			FFmpegBinary:         DefaultFFmpegBinary,
			EncodeTimeoutSeconds: DefaultEncodeTimeoutSeconds,
			Width:                DefaultWidth,
			Height:               DefaultHeight,
			FPS:                  DefaultFPS,
			CRF:                  DefaultCRF,
			Preset:               DefaultPreset,
			PadColor:             DefaultPadColor,
			AmbientVolume:        DefaultAmbientVolume,
			MinSceneSeconds:      DefaultMinSceneSeconds,
		},
		Fetch: Fetch{
			TimeoutSeconds: DefaultFetchTimeoutSeconds,
			MaxAttempts:    DefaultFetchMaxAttempts,
			Concurrency:    DefaultFetchConcurrency,
			UserAgent:      DefaultUserAgent,
		},
		Workspace: Workspace{
			RetentionMinutes:     DefaultRetentionMinutes,
			SweepIntervalMinutes: DefaultSweepIntervalMinutes,
		},
	}
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return defaultDataDirName
	}
	return filepath.Join(home, defaultDataDirName)
}
