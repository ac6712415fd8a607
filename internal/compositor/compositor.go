// Package compositor turns prepared scenes into a single H.264 video by
// driving the encoder with a generated filter graph.
package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/storymill/storymill-render/internal/failure"
	"github.com/storymill/storymill-render/internal/ffmpeg"
	"github.com/storymill/storymill-render/internal/scene"
	"github.com/storymill/storymill-render/internal/timeline"
	"github.com/storymill/storymill-render/internal/transition"
)

const (
	DefaultWidth         = 1920
	DefaultHeight        = 1080
	DefaultFPS           = 60
	DefaultCRF           = 20
	DefaultPreset        = "medium"
	DefaultPadColor      = "black"
	DefaultAmbientVolume = 0.3

	audioBitrate = "192k"
	pixelFormat  = "yuv420p"
)

// Config holds encode settings.
type Config struct {
	Width         int
	Height        int
	FPS           int
	CRF           int
	Preset        string
	PadColor      string
	AmbientVolume float64
	Logger        *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.CRF <= 0 {
		c.CRF = DefaultCRF
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	if c.PadColor == "" {
		c.PadColor = DefaultPadColor
	}
	if c.AmbientVolume <= 0 {
		c.AmbientVolume = DefaultAmbientVolume
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result describes a finished composition.
type Result struct {
	VideoPath       string
	TimelinePath    string
	DurationSeconds float64
	SizeBytes       int64
}

// Compositor builds and runs encode jobs.
type Compositor struct {
	cfg    Config
	runner ffmpeg.Runner
}

// New creates a Compositor that encodes through runner.
func New(cfg Config, runner ffmpeg.Runner) *Compositor {
	cfg.applyDefaults()
	return &Compositor{cfg: cfg, runner: runner}
}

// Resolution returns the output frame size as "WxH".
func (c *Compositor) Resolution() string {
	return fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height)
}

// Compose encodes scenes into {workDir}/{jobID}.mp4 and writes the matching
// timeline next to it.
func (c *Compositor) Compose(ctx context.Context, workDir, jobID, title string, scenes []scene.Prepared) (Result, error) {
	if len(scenes) == 0 {
		return Result{}, failure.Wrap(failure.ErrEncode, "compose", "plan", "no scenes", nil)
	}

	outPath := filepath.Join(workDir, jobID+".mp4")
	transitions := transition.PlanPrepared(scenes)
	plan := c.BuildPlan(scenes, transitions, outPath)
	if err := plan.Graph.Validate(); err != nil {
		return Result{}, failure.Wrap(failure.ErrEncode, "compose", "plan", "invalid filter graph", err)
	}

	logger := c.cfg.Logger.With("job_id", jobID)
	logger.Info("composing video",
		"scenes", len(scenes),
		"audio_tracks", plan.AudioTracks,
		"duration_s", plan.DurationSeconds,
		"resolution", c.Resolution(),
	)

	res := c.runner.Run(ctx, outPath, plan.Args...)
	if !res.IsSuccess() {
		os.Remove(outPath)
		return Result{}, failure.Wrap(failure.ErrEncode, "compose", "ffmpeg",
			fmt.Sprintf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.StderrTail)), nil)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return Result{}, failure.Wrap(failure.ErrEncode, "compose", "stat output", "", err)
	}

	edlPath := filepath.Join(workDir, timeline.FileName)
	edl := timeline.GenerateEDL(timeline.FromScenes(scenes, transitions), title, float64(c.cfg.FPS))
	if err := os.WriteFile(edlPath, []byte(edl), 0644); err != nil {
		// the video is complete; a missing timeline only disables /timeline
		logger.Warn("cannot write timeline", "error", err)
		edlPath = ""
	}

	logger.Info("video composed",
		"size", humanize.Bytes(uint64(info.Size())),
		"encode_ms", res.Duration.Milliseconds(),
	)

	return Result{
		VideoPath:       outPath,
		TimelinePath:    edlPath,
		DurationSeconds: plan.DurationSeconds,
		SizeBytes:       info.Size(),
	}, nil
}

// Plan is a fully assembled encoder invocation.
type Plan struct {
	Args            []string
	Graph           *ffmpeg.Graph
	AudioTracks     int
	DurationSeconds float64
}

type audioTrack struct {
	path     string
	offsetMs int64
	volume   float64 // 0 = unchanged
}

// BuildPlan assembles the encoder arguments for scenes without running anything.
func (c *Compositor) BuildPlan(scenes []scene.Prepared, transitions []transition.Descriptor, outPath string) Plan {
	var (
		args   = []string{"-y", "-hide_banner", "-loglevel", "error"}
		graph  = &ffmpeg.Graph{}
		tracks []audioTrack
		offset float64
	)

	videoLabels := make([]string, len(scenes))
	for i, s := range scenes {
		hold := s.DurationSeconds
		if i < len(transitions) {
			hold += transitions[i].DurationSeconds
		}

		if s.HasImage() {
			args = append(args, "-loop", "1", "-t", seconds(hold), "-i", s.ImagePath)
		} else {
			src := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d", c.cfg.PadColor, c.cfg.Width, c.cfg.Height, c.cfg.FPS)
			args = append(args, "-f", "lavfi", "-t", seconds(hold), "-i", src)
		}

		videoLabels[i] = fmt.Sprintf("v%d", i)
		graph.Add([]string{fmt.Sprintf("%d:v", i)}, []string{videoLabels[i]},
			ffmpeg.Scale(c.cfg.Width, c.cfg.Height),
			ffmpeg.Pad(c.cfg.Width, c.cfg.Height, c.cfg.PadColor),
			ffmpeg.SetSAR(),
			ffmpeg.FPS(c.cfg.FPS),
			ffmpeg.Format(pixelFormat),
		)

		startMs := int64(math.Round(offset * 1000))
		if s.AudioPath != "" {
			tracks = append(tracks, audioTrack{path: s.AudioPath, offsetMs: startMs})
		}
		if s.AmbientPath != "" {
			vol := c.cfg.AmbientVolume
			if s.Ambient != nil && s.Ambient.Volume > 0 {
				vol = s.Ambient.Volume
			}
			tracks = append(tracks, audioTrack{path: s.AmbientPath, offsetMs: startMs, volume: vol})
		}

		offset += hold
	}

	videoOut := videoLabels[0]
	if len(scenes) > 1 {
		videoOut = "vout"
		graph.Add(videoLabels, []string{videoOut}, ffmpeg.Concat(len(scenes), 1, 0))
	}

	audioMap := ""
	if len(tracks) > 0 {
		trackLabels := make([]string, len(tracks))
		for j, tr := range tracks {
			idx := len(scenes) + j
			args = append(args, "-i", tr.path)

			stream := fmt.Sprintf("%d:a", idx)
			var filters []ffmpeg.Filter
			if tr.volume > 0 {
				filters = append(filters, ffmpeg.Volume(tr.volume))
			}
			if tr.offsetMs > 0 {
				filters = append(filters, ffmpeg.ADelay(tr.offsetMs))
			}
			if len(filters) == 0 {
				trackLabels[j] = stream
				continue
			}
			trackLabels[j] = fmt.Sprintf("a%d", j)
			graph.Add([]string{stream}, []string{trackLabels[j]}, filters...)
		}

		switch {
		case len(tracks) > 1:
			graph.Add(trackLabels, []string{"aout"}, ffmpeg.AMix(len(tracks)))
			audioMap = "[aout]"
		case strings.Contains(trackLabels[0], ":"):
			audioMap = trackLabels[0]
		default:
			audioMap = "[" + trackLabels[0] + "]"
		}
	}

	args = append(args, "-filter_complex", graph.String(), "-map", "["+videoOut+"]")
	if audioMap != "" {
		args = append(args, "-map", audioMap)
	} else {
		args = append(args, "-an")
	}

	args = append(args,
		"-r", strconv.Itoa(c.cfg.FPS),
		"-pix_fmt", pixelFormat,
		"-c:v", "libx264",
		"-preset", c.cfg.Preset,
		"-crf", strconv.Itoa(c.cfg.CRF),
	)
	if audioMap != "" {
		args = append(args, "-c:a", "aac", "-b:a", audioBitrate)
	}
	args = append(args,
		"-t", seconds(offset),
		"-movflags", "+faststart",
		outPath,
	)

	return Plan{
		Args:            args,
		Graph:           graph,
		AudioTracks:     len(tracks),
		DurationSeconds: offset,
	}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
