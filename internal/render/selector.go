package render

import (
	"context"
	"log/slog"

	"github.com/storymill/storymill-render/internal/ffmpeg"
)

// CapabilityChecker reports whether the encoder can be used.
type CapabilityChecker interface {
	Get(ctx context.Context) *ffmpeg.Capabilities
}

// Selector picks a renderer per job.
type Selector struct {
	mode   Mode
	video  Renderer
	pkg    Renderer
	caps   CapabilityChecker
	logger *slog.Logger
}

func NewSelector(mode Mode, video, pkg Renderer, caps CapabilityChecker, logger *slog.Logger) *Selector {
	if mode == "" {
		mode = ModeAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		mode:   mode,
		video:  video,
		pkg:    pkg,
		caps:   caps,
		logger: logger.With("component", "render"),
	}
}

// Mode returns the configured default mode.
func (s *Selector) Mode() Mode { return s.mode }

// Select returns the renderer for a job. A non-empty override replaces the
// configured mode. Video and auto fall back to the package renderer when the
// encoder is unavailable.
func (s *Selector) Select(ctx context.Context, override Mode) Renderer {
	mode := s.mode
	if override != "" {
		mode = override
	}
	if mode == ModePackage || s.video == nil {
		return s.pkg
	}

	var caps *ffmpeg.Capabilities
	if s.caps != nil {
		caps = s.caps.Get(ctx)
	}
	if caps != nil && caps.Available {
		return s.video
	}

	reason := "no capability check"
	if caps != nil {
		reason = caps.Error
	}
	s.logger.Warn("encoder unavailable, falling back to package output",
		"mode", string(mode),
		"reason", reason,
	)
	return s.pkg
}
