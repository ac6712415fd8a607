// Package render selects and runs the output strategy for a job: an encoded
// video when the encoder is usable, a presentation package otherwise.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/compositor"
	"github.com/storymill/storymill-render/internal/packager"
	"github.com/storymill/storymill-render/internal/scene"
)

// Mode is the configured output strategy.
type Mode string

const (
	ModeVideo   Mode = "video"
	ModePackage Mode = "package"
	ModeAuto    Mode = "auto"
)

// ParseMode accepts "video", "package" or "auto" (case-insensitive). Empty
// means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeVideo, ModePackage, ModeAuto:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want video, package or auto)", s)
	}
}

// Input is everything a renderer needs for one job.
type Input struct {
	JobID   string
	Title   string
	WorkDir string
	Scenes  []scene.Prepared
}

// Output describes the produced artifact file and its companions.
type Output struct {
	Format          artifact.Format
	Path            string
	PreviewPath     string
	TimelinePath    string
	DurationSeconds float64
	SizeBytes       int64
	Resolution      string
}

// Renderer turns prepared scenes into one artifact.
type Renderer interface {
	Name() string
	Format() artifact.Format
	Render(ctx context.Context, in Input) (Output, error)
}

// VideoRenderer encodes an MP4 through the compositor.
type VideoRenderer struct {
	comp *compositor.Compositor
}

func NewVideoRenderer(comp *compositor.Compositor) *VideoRenderer {
	return &VideoRenderer{comp: comp}
}

func (r *VideoRenderer) Name() string            { return "video" }
func (r *VideoRenderer) Format() artifact.Format { return artifact.FormatVideo }

func (r *VideoRenderer) Render(ctx context.Context, in Input) (Output, error) {
	res, err := r.comp.Compose(ctx, in.WorkDir, in.JobID, in.Title, in.Scenes)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Format:          artifact.FormatVideo,
		Path:            res.VideoPath,
		TimelinePath:    res.TimelinePath,
		DurationSeconds: res.DurationSeconds,
		SizeBytes:       res.SizeBytes,
		Resolution:      r.comp.Resolution(),
	}, nil
}

// PackageRenderer writes a zipped HTML presentation through the packager.
type PackageRenderer struct {
	pkg        *packager.Packager
	resolution string
}

// NewPackageRenderer creates a PackageRenderer. resolution is reported in the
// artifact contract as the nominal frame size.
func NewPackageRenderer(pkg *packager.Packager, resolution string) *PackageRenderer {
	return &PackageRenderer{pkg: pkg, resolution: resolution}
}

func (r *PackageRenderer) Name() string            { return "package" }
func (r *PackageRenderer) Format() artifact.Format { return artifact.FormatArchive }

func (r *PackageRenderer) Render(ctx context.Context, in Input) (Output, error) {
	res, err := r.pkg.Package(ctx, in.WorkDir, in.JobID, in.Title, in.Scenes)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Format:          artifact.FormatArchive,
		Path:            res.ArchivePath,
		PreviewPath:     res.PreviewPath,
		DurationSeconds: scene.TotalDuration(in.Scenes),
		SizeBytes:       res.SizeBytes,
		Resolution:      r.resolution,
	}, nil
}
