package config

import (
	"fmt"
	"strings"
)

func (c *FileConfig) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeLogging()
	c.normalizeRender()
	return nil
}

func (c *FileConfig) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir()
	}
	if strings.TrimSpace(c.Paths.TempRoot) == "" {
		c.Paths.TempRoot = Default().Paths.TempRoot
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.TempRoot, err = expandPath(c.Paths.TempRoot); err != nil {
		return fmt.Errorf("paths.temp_root: %w", err)
	}
	return nil
}

func (c *FileConfig) normalizeServer() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
}

func (c *FileConfig) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

func (c *FileConfig) normalizeRender() {
	c.Render.Output = strings.ToLower(strings.TrimSpace(c.Render.Output))
	if c.Render.Output == "" {
		c.Render.Output = DefaultOutput
	}
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = DefaultFFmpegBinary
	}
	c.Render.Preset = strings.TrimSpace(c.Render.Preset)
	if c.Render.Preset == "" {
		c.Render.Preset = DefaultPreset
	}
	c.Render.PadColor = strings.TrimSpace(c.Render.PadColor)
	if c.Render.PadColor == "" {
		c.Render.PadColor = DefaultPadColor
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}
}
