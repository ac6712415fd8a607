package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/failure"
	"github.com/storymill/storymill-render/internal/logging"
	"github.com/storymill/storymill-render/internal/render"
	"github.com/storymill/storymill-render/internal/scene"
	"github.com/storymill/storymill-render/internal/workspace"
)

// AssetResolver downloads or decodes scene media into a workspace.
type AssetResolver interface {
	Resolve(ctx context.Context, scenes []scene.Descriptor, workDir string) []scene.Prepared
}

// Workspaces allocates and reclaims job directories.
type Workspaces interface {
	Allocate(jobID string) (*workspace.Workspace, error)
	ScheduleRemoval(ws *workspace.Workspace, after time.Duration)
	Remove(ws *workspace.Workspace)
	Retention() time.Duration
}

// RendererSelector picks the output strategy for a job.
type RendererSelector interface {
	Select(ctx context.Context, override render.Mode) render.Renderer
}

// Config wires the service's collaborators.
type Config struct {
	Assets        AssetResolver
	Workspaces    Workspaces
	Selector      RendererSelector
	Artifacts     artifact.Repository
	Jobs          Repository
	Stats         StatsFactory
	PublicBaseURL string
	Logger        *slog.Logger
}

// Service runs render jobs.
type Service struct {
	assets     AssetResolver
	workspaces Workspaces
	selector   RendererSelector
	artifacts  artifact.Repository
	jobs       Repository
	stats      StatsFactory
	baseURL    string
	logger     *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NewMemoryStatsFactory(logger)
	}
	return &Service{
		assets:     cfg.Assets,
		workspaces: cfg.Workspaces,
		selector:   cfg.Selector,
		artifacts:  cfg.Artifacts,
		jobs:       cfg.Jobs,
		stats:      stats,
		baseURL:    cfg.PublicBaseURL,
		logger:     logging.WithComponent(logger, "jobs"),
		now:        time.Now,
	}
}

// Run executes a job synchronously and returns its artifact contract. Once
// the job has started it runs to completion even if ctx is cancelled.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	rec, mode, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.execute(context.WithoutCancel(ctx), rec, mode, req)
}

// Submit validates and records a job, then runs it in the background.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	rec, mode, err := s.begin(ctx, req)
	if err != nil {
		return "", err
	}

	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(detached, rec, mode, req)
	}()
	return rec.ID, nil
}

// Wait blocks until all submitted jobs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.jobs.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	return s.jobs.List(ctx, limit)
}

// Contract returns the artifact contract for a registered artifact.
func (s *Service) Contract(a *artifact.Artifact) *Result {
	return NewResult(a, s.baseURL)
}

func (s *Service) begin(ctx context.Context, req Request) (*Record, render.Mode, error) {
	if err := scene.Validate(req.Scenes); err != nil {
		return nil, "", err
	}

	var mode render.Mode
	if strings.TrimSpace(req.Output) != "" {
		m, err := render.ParseMode(req.Output)
		if err != nil {
			return nil, "", failure.Wrap(failure.ErrValidation, StageValidate, "output", err.Error(), nil)
		}
		mode = m
	}

	now := s.now()
	rec := &Record{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(req.Title),
		Output:     string(mode),
		Status:     StatusRunning,
		SceneCount: len(req.Scenes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.Create(ctx, rec); err != nil {
		return nil, "", failure.Wrap(failure.ErrStorage, StageAllocate, "create job", "", err)
	}
	return rec, mode, nil
}

func (s *Service) execute(ctx context.Context, rec *Record, mode render.Mode, req Request) (*Result, error) {
	logger := logging.WithJobID(s.logger, rec.ID)
	stats := s.stats(rec.ID)
	status := StatusFailed
	defer func() { stats.Finish(status) }()

	logger.Info("job started", "scenes", len(req.Scenes), "output", string(mode))

	ws, err := s.workspaces.Allocate(rec.ID)
	if err != nil {
		return nil, s.fail(ctx, rec, logger, withStage(StageAllocate, err))
	}

	s.setStage(ctx, rec.ID, StageAssets, logger)
	start := time.Now()
	prepared := s.assets.Resolve(ctx, req.Scenes, ws.Dir)
	stats.Observe("assets", time.Since(start))

	images := scene.CountImages(prepared)
	stats.Count("scenes", len(prepared))
	stats.Count("images", images)
	stats.Count("missing_images", len(prepared)-images)
	if images == 0 {
		return nil, s.abort(ctx, rec, ws, logger,
			failure.Wrap(failure.ErrValidation, StageAssets, "resolve", "no scene image could be acquired", nil))
	}

	s.setStage(ctx, rec.ID, StageRender, logger)
	renderer := s.selector.Select(ctx, mode)
	start = time.Now()
	out, err := renderer.Render(ctx, render.Input{
		JobID:   rec.ID,
		Title:   rec.Title,
		WorkDir: ws.Dir,
		Scenes:  prepared,
	})
	stats.Observe("render", time.Since(start))
	if err != nil {
		return nil, s.abort(ctx, rec, ws, logger, withStage(StageRender, err))
	}

	s.setStage(ctx, rec.ID, StageRegister, logger)
	now := s.now()
	expires := now.Add(s.workspaces.Retention())
	art := &artifact.Artifact{
		ID:              rec.ID,
		Title:           rec.Title,
		Format:          out.Format,
		StoragePath:     out.Path,
		PreviewPath:     out.PreviewPath,
		TimelinePath:    out.TimelinePath,
		SizeBytes:       out.SizeBytes,
		SceneCount:      len(prepared),
		DurationSeconds: out.DurationSeconds,
		Resolution:      out.Resolution,
		Temporary:       true,
		CreatedAt:       now,
		ExpiresAt:       &expires,
	}
	if err := s.artifacts.Create(ctx, art); err != nil {
		return nil, s.abort(ctx, rec, ws, logger,
			failure.Wrap(failure.ErrStorage, StageRegister, "create artifact", "", err))
	}

	s.workspaces.ScheduleRemoval(ws, 0)
	if err := s.jobs.MarkCompleted(ctx, rec.ID, art.ID); err != nil {
		logger.Warn("failed to mark job completed", "error", err)
	}
	status = StatusCompleted
	stats.Count("bytes", int(out.SizeBytes))

	logger.Info("job completed",
		"renderer", renderer.Name(),
		"format", string(out.Format),
		"size", humanize.Bytes(uint64(out.SizeBytes)),
		"duration_s", out.DurationSeconds,
	)
	return s.Contract(art), nil
}

// abort removes the workspace before recording the failure so a failed job
// never leaves files behind.
func (s *Service) abort(ctx context.Context, rec *Record, ws *workspace.Workspace, logger *slog.Logger, err error) error {
	s.workspaces.Remove(ws)
	return s.fail(ctx, rec, logger, err)
}

func (s *Service) fail(ctx context.Context, rec *Record, logger *slog.Logger, err error) error {
	stage := failure.Stage(err)
	logger.Error("job failed", "stage", stage, "code", failure.Code(err), "error", err)
	if mErr := s.jobs.MarkFailed(ctx, rec.ID, stage, err.Error()); mErr != nil {
		logger.Warn("failed to mark job failed", "error", mErr)
	}
	return err
}

func (s *Service) setStage(ctx context.Context, id, stage string, logger *slog.Logger) {
	if err := s.jobs.SetStage(ctx, id, stage); err != nil {
		logger.Warn("failed to record job stage", "stage", stage, "error", err)
	}
}

// withStage makes sure err carries a stage.
func withStage(stage string, err error) error {
	var se *failure.StageError
	if errors.As(err, &se) {
		return err
	}
	return failure.Wrap(failure.ErrStorage, stage, "", "", err)
}

// Keep copies a finished video into dest and marks its registry entry
// permanent, so it outlives the workspace.
func (s *Service) Keep(ctx context.Context, artifactID, dest string) error {
	a, err := s.artifacts.Get(ctx, artifactID)
	if err != nil {
		return failure.Wrap(failure.ErrStorage, "keep", "lookup", "", err)
	}
	if a == nil {
		return failure.Wrap(failure.ErrArtifactNotFound, "keep", "lookup", artifactID, nil)
	}
	if a.Format != artifact.FormatVideo {
		return failure.Wrap(failure.ErrValidation, "keep", "", "only video artifacts can be kept", nil)
	}

	if err := copyFile(a.StoragePath, dest); err != nil {
		return failure.Wrap(failure.ErrStorage, "keep", "copy", "", err)
	}
	if err := s.artifacts.Promote(ctx, artifactID, dest); err != nil {
		return failure.Wrap(failure.ErrStorage, "keep", "promote", "", err)
	}
	s.logger.Info("artifact kept", "artifact_id", artifactID, "path", logging.SanitizePath(dest))
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// ArtifactCleanup returns a workspace removal hook that drops the registry
// row of a temporary artifact. Kept artifacts are left alone.
func ArtifactCleanup(repo artifact.Repository, logger *slog.Logger) func(jobID string) {
	return func(jobID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		a, err := repo.Get(ctx, jobID)
		if err != nil {
			logger.Warn("artifact lookup failed during cleanup", "artifact_id", jobID, "error", err)
			return
		}
		if a == nil || !a.Temporary {
			return
		}
		if err := repo.Delete(ctx, jobID); err != nil {
			logger.Warn("artifact cleanup failed", "artifact_id", jobID, "error", err)
			return
		}
		logger.Debug("artifact unregistered", "artifact_id", jobID)
	}
}
