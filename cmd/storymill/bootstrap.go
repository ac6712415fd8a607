package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/assets"
	"github.com/storymill/storymill-render/internal/compositor"
	"github.com/storymill/storymill-render/internal/config"
	"github.com/storymill/storymill-render/internal/db"
	"github.com/storymill/storymill-render/internal/ffmpeg"
	"github.com/storymill/storymill-render/internal/jobs"
	"github.com/storymill/storymill-render/internal/packager"
	"github.com/storymill/storymill-render/internal/render"
	"github.com/storymill/storymill-render/internal/workspace"
)

// app is the fully wired pipeline shared by the server and the one-shot
// commands.
type app struct {
	cfg        *config.FileConfig
	logger     *slog.Logger
	db         *db.DB
	artifacts  *artifact.SQLiteRepository
	jobRepo    *jobs.SQLiteRepository
	resolver   *artifact.Resolver
	doctor     *ffmpeg.CachedDoctor
	selector   *render.Selector
	workspaces *workspace.Manager
	jobs       *jobs.Service
	baseURL    string
}

func newApp(cfg *config.FileConfig, logger *slog.Logger) (*app, error) {
	mode, err := render.ParseMode(cfg.OutputMode())
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	artifactRepo := artifact.NewRepository(database.Conn())
	jobRepo := jobs.NewRepository(database.Conn())

	runnerCfg := ffmpeg.DefaultConfig(logger)
	runnerCfg.Binary = cfg.FFmpegBinary()
	runnerCfg.EncodeTimeout = cfg.EncodeTimeout()
	runner := ffmpeg.NewRunner(runnerCfg)
	doctor := ffmpeg.NewCachedDoctor(runner, runner.Binary(), logger)

	comp := compositor.New(compositor.Config{
		Width:         cfg.Width(),
		Height:        cfg.Height(),
		FPS:           cfg.FPS(),
		CRF:           cfg.CRF(),
		Preset:        cfg.Preset(),
		PadColor:      cfg.PadColor(),
		AmbientVolume: cfg.AmbientVolume(),
		Logger:        logger,
	}, runner)
	pkg := packager.New(packager.Config{Logger: logger})
	selector := render.NewSelector(mode,
		render.NewVideoRenderer(comp),
		render.NewPackageRenderer(pkg, comp.Resolution()),
		doctor, logger)

	ws, err := workspace.NewManager(workspace.Config{
		Root:      cfg.TempRoot(),
		Retention: cfg.Retention(),
		Logger:    logger,
		OnRemove:  jobs.ArtifactCleanup(artifactRepo, logger),
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	resolver := assets.NewResolver(assets.Config{
		FetchTimeout:    cfg.FetchTimeout(),
		MaxAttempts:     cfg.FetchMaxAttempts(),
		Concurrency:     cfg.FetchConcurrency(),
		MinSceneSeconds: cfg.MinSceneSeconds(),
		UserAgent:       cfg.UserAgent(),
		Logger:          logger,
	})

	baseURL := publicBaseURL(cfg)
	svc := jobs.NewService(jobs.Config{
		Assets:        resolver,
		Workspaces:    ws,
		Selector:      selector,
		Artifacts:     artifactRepo,
		Jobs:          jobRepo,
		PublicBaseURL: baseURL,
		Logger:        logger,
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         database,
		artifacts:  artifactRepo,
		jobRepo:    jobRepo,
		resolver:   artifact.NewResolver(cfg.TempRoot(), cfg.DataDir(), artifactRepo, logger),
		doctor:     doctor,
		selector:   selector,
		workspaces: ws,
		jobs:       svc,
		baseURL:    baseURL,
	}, nil
}

// Close waits for submitted jobs, then releases the database. Pending
// workspace removals are left to a later sweep.
func (a *app) Close() error {
	a.jobs.Wait()
	a.workspaces.Stop()
	return a.db.Close()
}

func publicBaseURL(cfg *config.FileConfig) string {
	if u := cfg.PublicBaseURL(); u != "" {
		return u
	}
	host := cfg.BindHost()
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Port())
}
