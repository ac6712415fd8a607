package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *FileConfig) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	return c.validateWorkspace()
}

func (c *FileConfig) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.PublicBaseURL != "" {
		u, err := url.Parse(c.Server.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("server.public_base_url must be an absolute http(s) URL, got %q", c.Server.PublicBaseURL)
		}
	}
	return nil
}

func (c *FileConfig) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func (c *FileConfig) validateRender() error {
	switch c.Render.Output {
	case "video", "package", "auto":
	default:
		return fmt.Errorf("render.output must be video, package or auto, got %q", c.Render.Output)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render.width and render.height must be positive even numbers, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.FPS < 1 || c.Render.FPS > 120 {
		return fmt.Errorf("render.fps must be between 1 and 120, got %d", c.Render.FPS)
	}
	if c.Render.CRF < 0 || c.Render.CRF > 51 {
		return fmt.Errorf("render.crf must be between 0 and 51, got %d", c.Render.CRF)
	}
	if c.Render.AmbientVolume < 0 || c.Render.AmbientVolume > 1 {
		return errors.New("render.ambient_volume must be between 0 and 1")
	}
	if c.Render.MinSceneSeconds < 0 {
		return errors.New("render.min_scene_seconds must not be negative")
	}
	if c.Render.EncodeTimeoutSeconds <= 0 {
		return errors.New("render.encode_timeout_seconds must be positive")
	}
	return nil
}

func (c *FileConfig) validateFetch() error {
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.MaxAttempts < 1 {
		return errors.New("fetch.max_attempts must be at least 1")
	}
	if c.Fetch.Concurrency < 1 {
		return errors.New("fetch.concurrency must be at least 1")
	}
	return nil
}

func (c *FileConfig) validateWorkspace() error {
	if c.Workspace.RetentionMinutes <= 0 {
		return errors.New("workspace.retention_minutes must be positive")
	}
	if c.Workspace.SweepIntervalMinutes <= 0 {
		return errors.New("workspace.sweep_interval_minutes must be positive")
	}
	return nil
}
